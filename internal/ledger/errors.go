package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can match over kinds instead of
// error text. Terminal kinds identify deterministic ledger rejections that
// no amount of endpoint rotation can change.
type Kind int

const (
	// KindTransient covers endpoint-specific and network-level failures.
	// The pool rotates and retries these.
	KindTransient Kind = iota

	// KindCurveComplete means the bonding curve for the mint is exhausted
	// and the venue must graduate to the aggregator.
	KindCurveComplete

	// KindInsufficientFunds means the wallet cannot cover the transaction.
	KindInsufficientFunds

	// KindProgramFatal covers other deterministic on-chain program
	// rejections.
	KindProgramFatal

	// KindNoRoute means the aggregator has no viable route for the
	// requested amount.
	KindNoRoute

	// KindRelayRejected means the trade relay refused the request body.
	KindRelayRejected
)

func (k Kind) String() string {
	switch k {
	case KindCurveComplete:
		return "curve-complete"
	case KindInsufficientFunds:
		return "insufficient-funds"
	case KindProgramFatal:
		return "program-fatal"
	case KindNoRoute:
		return "no-route"
	case KindRelayRejected:
		return "relay-rejected"
	default:
		return "transient"
	}
}

// Terminal reports whether retrying the same operation can possibly
// succeed. Only transient failures are worth another endpoint.
func (k Kind) Terminal() bool {
	return k != KindTransient
}

// ClassifiedError attaches a Kind to an underlying error.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// WrapKind wraps err with an explicit kind. Clients that already know the
// failure class (HTTP 400 from the relay, empty route plan from the
// aggregator) use this so downstream code never has to inspect text.
func WrapKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// Classify resolves the kind of an error. A ClassifiedError anywhere in the
// chain wins; otherwise the message is matched against the known upstream
// patterns.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage maps raw upstream error text to a Kind. RPC nodes and the
// swap services only expose these conditions as message substrings, so this
// is the single place in the codebase where error text is interpreted.
func ClassifyMessage(msg string) Kind {
	switch {
	case strings.Contains(msg, "BondingCurveComplete"),
		strings.Contains(msg, "custom program error: 0x1775"):
		return KindCurveComplete
	case strings.Contains(msg, "no route"),
		strings.Contains(msg, "quote returned no route"),
		strings.Contains(msg, "swap returned no transaction"):
		return KindNoRoute
	case strings.Contains(msg, "insufficient lamports"),
		strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "Transaction results in an account"),
		strings.Contains(msg, "custom program error: 0x1") &&
			!strings.Contains(msg, "custom program error: 0x17"):
		return KindInsufficientFunds
	case strings.Contains(msg, "custom program error:"),
		strings.Contains(msg, "Error Code:"):
		return KindProgramFatal
	default:
		return KindTransient
	}
}
