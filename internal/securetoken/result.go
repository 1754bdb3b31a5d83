package securetoken

// Failure explains why a token did not validate. It is meant for logs and
// metrics only; callers must not surface it to clients.
type Failure int

const (
	FailureNone Failure = iota
	FailureMalformed
	FailureBadTimestamp
	FailureExpired
	FailureUserMismatch
	FailureNoCredential
	FailureMissingNonce
	FailureSignatureMismatch
	FailureUserNotFound
	FailureLookup
	FailureStore
	FailureUnknownVariant
)

var failureNames = map[Failure]string{
	FailureNone:              "ok",
	FailureMalformed:         "malformed",
	FailureBadTimestamp:      "bad_timestamp",
	FailureExpired:           "expired",
	FailureUserMismatch:      "user_mismatch",
	FailureNoCredential:      "no_credential",
	FailureMissingNonce:      "missing_nonce",
	FailureSignatureMismatch: "signature_mismatch",
	FailureUserNotFound:      "user_not_found",
	FailureLookup:            "lookup_failed",
	FailureStore:             "store_failed",
	FailureUnknownVariant:    "unknown_variant",
}

func (f Failure) String() string {
	if name, ok := failureNames[f]; ok {
		return name
	}
	return "unknown"
}

// Result is the outcome of validating a token.
type Result struct {
	Token   Token
	Failure Failure
}

// OK reports whether the token validated.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}

func fail(t Token, f Failure) Result {
	return Result{Token: t, Failure: f}
}
