// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain types so the domain layer stays free of ORM tags;
// every model converts with ToDomain/FromDomain.
//
// Tables:
//   - fund_requests: FundRequestModel
//   - fund_request_history: HistoryEntryModel (append-only)
//   - workflow_steps: WorkflowStepModel
//   - fund_request_sequences: RequestSequenceModel
//   - outbox_events: OutboxEntryModel
package models
