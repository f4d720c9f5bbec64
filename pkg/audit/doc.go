// Package audit records tenant lifecycle events.
//
// A Logger stamps each event with an ID, timestamp and result, applies
// EventOptions and writes it to a Storage. Context extractors fill the
// tenant and request IDs when the caller does not set them explicitly.
//
//	store := audit.NewMemoryStorage()
//	log := audit.NewLogger(store,
//	    audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
//	        id := middleware.GetReqID(ctx)
//	        return id, id != ""
//	    }),
//	)
//	_ = log.Log(ctx, audit.ActionSwitch,
//	    audit.WithTenantID("acme"),
//	    audit.WithMetadata("from", ""),
//	)
//
// AsyncWriter batches writes for storages that support StoreBatch.
// Audit emission is best-effort for callers in the tenancy package: a
// failed write is logged and never aborts the operation being audited.
package audit
