package rverror

const (
	// CodeParse is returned when PEM/DER input is malformed, an ASN.1
	// structure is unexpected, or a date cannot be decoded.
	CodeParse = "parse_error"
	// CodeProtocol is returned when a well-formed message violates the
	// protocol: CertID mismatch, OCSP status other than successful,
	// invalid CRL signature, CRL not yet in force, CRL number rollback.
	CodeProtocol = "protocol_error"
	// CodeTransport is returned on network, TLS, DNS or timeout failures.
	// Retryable at the caller's discretion.
	CodeTransport = "transport_error"
	// CodePolicy is returned when no responder URL is available, a cached
	// response is stale, or issuer evidence is absent.
	CodePolicy = "policy_error"
	// CodeNotFound is returned when a fetched URL returned 404.
	CodeNotFound = "not_found"
)
