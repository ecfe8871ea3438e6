package apierrors

// Category codes surfaced to HTTP clients and logged, mirroring the error
// categories of the orchestration spec: ValidationError, NoResourceError,
// WorkerStartupError, RpcTransportError, InferenceError.
const (
	RequestParameterInvalid int = 4001
	RequestDataNotFound     int = 4004
	ContractMismatch        int = 4010

	InternalError    int = 5000
	NoGPUAvailable   int = 5010
	WorkerStartup    int = 5011
	RpcTransport     int = 5012
	InferenceFailure int = 5013
)
