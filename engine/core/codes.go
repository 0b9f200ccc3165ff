package core

// Stable error and finding codes. These strings are part of the machine
// contract: agents dedupe and branch on them, so they never change meaning.
const (
	// Usage
	CodeUnknownCommand  = "UNKNOWN_COMMAND"
	CodeMissingArgument = "MISSING_ARGUMENT"
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Data / validation
	CodeParseError              = "PARSE_ERROR"
	CodeInvalidWorkflow         = "INVALID_WORKFLOW"
	CodeMissingWorkflowName     = "MISSING_WORKFLOW_NAME"
	CodeEmptyWorkflow           = "EMPTY_WORKFLOW"
	CodeDuplicateNodeName       = "DUPLICATE_NODE_NAME"
	CodeMissingNodeName         = "MISSING_NODE_NAME"
	CodeMissingNodeType         = "MISSING_NODE_TYPE"
	CodeInvalidNodeTypeFormat   = "INVALID_NODE_TYPE_FORMAT"
	CodeParameterValidation     = "N8N_PARAMETER_VALIDATION_ERROR"
	CodeTypeVersionExceeded     = "TYPEVERSION_EXCEEDS_LATEST"
	CodeTypeVersionOutdated     = "TYPEVERSION_OUTDATED"
	CodeMissingTrigger          = "MISSING_TRIGGER"
	CodeConnectionUnknownNode   = "CONNECTION_UNKNOWN_NODE"
	CodeConnectionSelfLoop      = "CONNECTION_SELF_LOOP"
	CodeConnectionBadIndex      = "CONNECTION_INDEX_OUT_OF_RANGE"
	CodeStaleConnections        = "STALE_CONNECTIONS"
	CodeExpressionMissingPrefix = "EXPRESSION_MISSING_PREFIX"
	CodeExpressionUnbalanced    = "EXPRESSION_UNBALANCED"
	CodeExpressionInvalidRef    = "EXPRESSION_INVALID_REFERENCE"
	CodeMissingLanguageModel    = "MISSING_LANGUAGE_MODEL"
	CodeMultipleLanguageModels  = "MULTIPLE_LANGUAGE_MODELS"
	CodeMissingOutputParser     = "MISSING_OUTPUT_PARSER"
	CodeMultipleMemories        = "MULTIPLE_MEMORIES"
	CodeStreamingWithMainOutput = "STREAMING_WITH_MAIN_OUTPUT"
	CodeStreamingNeedsChat      = "STREAMING_REQUIRES_CHAT_TRIGGER"
	CodeMissingToolDescription  = "MISSING_TOOL_DESCRIPTION"
	CodeMissingPromptText       = "MISSING_PROMPT_TEXT"
	CodeChainWithTools          = "CHAIN_DOES_NOT_SUPPORT_TOOLS"
	CodeSQLInjectionRisk        = "SQL_INJECTION_RISK"
	CodeSecurityWarning         = "SECURITY_WARNING"
	CodeDeprecatedNode          = "DEPRECATED_NODE"
	CodeInvalidOptionValue      = "INVALID_OPTION_VALUE"
	CodeUnknownParameter        = "UNKNOWN_PARAMETER"
	CodeMissingRecommended      = "MISSING_RECOMMENDED_PARAMETER"
	CodeWebhookMissingPath      = "WEBHOOK_MISSING_PATH"
	CodeDuplicateWebhookPath    = "DUPLICATE_WEBHOOK_PATH"
	CodeErrorOutputUnsupported  = "ERROR_OUTPUT_UNSUPPORTED"
	CodeBreakingChange          = "BREAKING_CHANGE"
	CodeNotFound                = "NOT_FOUND"
	CodeVersionNotFound         = "VERSION_NOT_FOUND"
	CodeDiffOperationFailed     = "DIFF_OPERATION_FAILED"

	// Files and I/O
	CodeFileNotFound = "ENOENT"
	CodeIOError      = "IO_ERROR"
	CodeStoreError   = "STORE_ERROR"
	CodeKBError      = "KB_ERROR"
	CodeKBMissing    = "KB_MISSING"

	// Remote
	CodeHostUnreachable = "HOST_UNREACHABLE"
	CodeRateLimited     = "RATE_LIMITED"
	CodeRequestTimeout  = "REQUEST_TIMEOUT"
	CodeAPIProtocol     = "API_PROTOCOL_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeServerError     = "SERVER_ERROR"
	CodeSSRFBlocked     = "SSRF_BLOCKED"

	// Permissions and config
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeConfigInvalid    = "CONFIG_INVALID"

	// Process
	CodeCancelled = "CANCELLED"
	CodeInternal  = "INTERNAL_ERROR"
)
