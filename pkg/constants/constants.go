package constants

import "github.com/go-playground/validator/v10"

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	RequestIDKey contextKey = "request_id"
	CSRFTokenKey contextKey = "csrf_token"
	TxKey        contextKey = "tx"
	PoolKey      contextKey = "pool"
)

// CSRFMetaName is the <meta> name the admin page publishes the token under.
const CSRFMetaName = "csrf-token"

// Validate is the shared struct validator for request DTOs.
var Validate = validator.New(validator.WithRequiredStructEnabled())
