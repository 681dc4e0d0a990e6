package log

// Common field names for structured logging
const (
	FieldComponent        = "component"
	FieldError            = "error"
	FieldOperation        = "operation"
	FieldRunID            = "run_id"
	FieldPeriod           = "period"
	FieldStatus           = "status"
	FieldTable            = "table"
	FieldStage            = "stage"
	FieldMatchMode        = "match_mode"
	FieldRowsWritten      = "rows_written"
	FieldInvoicesAssigned = "invoices_assigned"
	FieldLinksUpdated     = "links_updated"
	FieldEmailsWritten    = "emails_written"
	FieldBackend          = "backend"
	FieldQueue            = "queue"
	FieldDuration         = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpProcess  = "process"
	OpAssign   = "assign"
	OpLinks    = "links"
	OpClassify = "classify"
	OpHistory  = "history"
	OpEnqueue  = "enqueue"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
