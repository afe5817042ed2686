package dbinfra

const (
	ErrorCodeInvalidEnvironment = "config.invalid_environment"
	ErrorCodeInvalidConfig      = "config.invalid"
	ErrorCodeSchemaInvalid      = "schema.validation_failed"
	ErrorCodeProvisionFailed    = "provision.failed"
	ErrorCodeDuplicatePath      = "publish.duplicate_path"
	ErrorCodePublishFailed      = "publish.failed"
	ErrorCodeMonitorFailed      = "monitor.failed"
	ErrorCodeDependencyFailed   = "deploy.dependency_failed"
)

const (
	errorMessageInvalidEnvironment = "invalid environment"
	errorMessageInvalidConfig      = "invalid configuration"
	errorMessageSchemaInvalid      = "schema validation failed"
	errorMessageProvisionFailed    = "provisioning failed"
	errorMessageDuplicatePath      = "duplicate parameter path"
	errorMessagePublishFailed      = "publication failed"
	errorMessageMonitorFailed      = "monitoring configuration failed"
	errorMessageDependencyFailed   = "dependency failed"
)

func defaultMessageForCode(code string) string {
	switch code {
	case ErrorCodeInvalidEnvironment:
		return errorMessageInvalidEnvironment
	case ErrorCodeInvalidConfig:
		return errorMessageInvalidConfig
	case ErrorCodeSchemaInvalid:
		return errorMessageSchemaInvalid
	case ErrorCodeProvisionFailed:
		return errorMessageProvisionFailed
	case ErrorCodeDuplicatePath:
		return errorMessageDuplicatePath
	case ErrorCodePublishFailed:
		return errorMessagePublishFailed
	case ErrorCodeMonitorFailed:
		return errorMessageMonitorFailed
	case ErrorCodeDependencyFailed:
		return errorMessageDependencyFailed
	default:
		return "error"
	}
}
