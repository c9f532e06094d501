package constant

const (
	ALREADY_EXISTS           = "%s already exists"
	CREATED                  = "%s created successfully"
	INVALID_REQUEST          = "Invalid request payload"
	CANT_FIND                = "%s not found"
	EMAIL_OR_PHONE           = "invalid email address or phone number"
	SOMETHING_WENT_WRONG     = "something went wrong"
	UNAUTHORIZED_ACCESS      = "unauthorized access"
	INVALID_TOKEN            = "Invalid or expired token"
	TOKEN_EXPIRED            = "Token has expired"
	PAGE_NUMBER_OUT_OF_RANGE = "page number out of range"
)
