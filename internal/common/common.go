package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderRequestID     = "X-Request-Id"
	ContentTypeJSON     = "application/json"
	ContentTypeHTML     = "text/html; charset=utf-8"
	ContentTypeOctet    = "application/octet-stream"
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
)

// Paths
const (
	PathIndex     = "/"
	PathDiagnose  = "/diagnose"
	PathDiagnoses = "/v1/diagnoses"
	PathHealthz   = "/healthz"
	PathStatic    = "/static/"
)

// Form fields of a submission
const (
	FormFieldSource  = "source"
	FormFieldFile    = "file"
	FormFieldCapture = "capture"

	SourceUpload = "upload"
	SourceCamera = "camera"
)

// MIME types
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
	MimeImageJPG  = "image/jpg"
)

// LLM providers
const (
	ProviderGemini  = "gemini"
	ProviderAIProxy = "aiproxy"
	ProviderMock    = "mock"
)

// Defaults and limits
const (
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultConfigFile    = "config.yaml"
	EnvConfigPath        = "LEAFDOCTOR_CONFIG"
	EnvGoogleAPIKey      = "GOOGLE_API_KEY" // #nosec G101 - env var name, not a credential
)

// Error categories reported to clients
const (
	CategoryMissingInput    = "missing_input"
	CategoryInvalidInput    = "invalid_input"
	CategoryServiceError    = "service_error"
	CategoryUnexpectedError = "unexpected_error"
)
