package constant

const (
	SESSION_CREATED    = "Session created successfully"
	SESSION_DESTROYED  = "Session destroyed successfully"
	SESSION_CONNECTED  = "Session connected successfully"
	MESSAGE_SENT       = "Message sent successfully"
	BULK_STARTED       = "Bulk send started"
	BULK_PAUSED        = "Bulk send paused"
	BULK_RESUMED       = "Bulk send resumed"
	BULK_CANCELLED     = "Bulk send cancelled"
	JOB_SCHEDULED      = "Message scheduled successfully"
	JOB_CANCELLED      = "Scheduled job cancelled"
	JOB_RESCHEDULED    = "Scheduled job rescheduled"
	DOCUMENT_REPLACED  = "Document replaced successfully"
	CONVERSATION_RESET = "Conversation cleared"

	SESSION_NOT_FOUND    = "Session not found"
	SESSION_NOT_READY    = "No ready session for this account"
	JOB_NOT_FOUND        = "Scheduled job not found"
	GROUP_NOT_AUTHORIZED = "Not authorized to post to this group"
	BULK_ALREADY_RUNNING = "A bulk send is already running for this account"
)
