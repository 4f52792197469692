package orchestrator

import (
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/wiki"
)

type classifier func(e *wiki.Error, now time.Time) domain.Failure

func plain(kind domain.FailureKind) classifier {
	return func(*wiki.Error, time.Time) domain.Failure {
		return domain.NewFailure(kind)
	}
}

func maxlag(e *wiki.Error, now time.Time) domain.Failure {
	if !e.HasRetryAfter() {
		return domain.NewFailure(domain.FailureMaxlag)
	}
	return domain.NewMaxlagFailure(now.Add(e.RetryAfter))
}

func blocked(e *wiki.Error, _ time.Time) domain.Failure {
	info := domain.BlockInfo{Partial: e.Code == "partialblocked"}
	if b := e.Block; b != nil {
		info.ID = b.ID
		info.By = b.By
		info.Reason = b.Reason
		info.Expiry = b.Expiry
		info.Partial = info.Partial || b.Partial
	}
	return domain.NewBlockedFailure(info)
}

func readOnly(e *wiki.Error, now time.Time) domain.Failure {
	reason := e.ReadOnlyReason
	if reason == "" {
		reason = e.Info
	}
	if !e.HasRetryAfter() {
		return domain.NewReadOnlyFailure(reason, nil)
	}
	until := now.Add(e.RetryAfter)
	return domain.NewReadOnlyFailure(reason, &until)
}

// classifiers — коды ошибок MediaWiki, известные политике повторов.
var classifiers = map[string]classifier{
	"missingtitle":                 plain(domain.FailurePageMissing),
	"invalidtitle":                 plain(domain.FailureTitleInvalid),
	"protectedpage":                plain(domain.FailurePageProtected),
	"cascadeprotected":             plain(domain.FailurePageProtected),
	"protectednamespace":           plain(domain.FailurePageProtected),
	"protectednamespace-interface": plain(domain.FailurePageProtected),
	"protectedtitle":               plain(domain.FailurePageProtected),
	"editconflict":                 plain(domain.FailureEditConflict),
	"maxlag":                       maxlag,
	"blocked":                      blocked,
	"autoblocked":                  blocked,
	"partialblocked":               blocked,
	"readonly":                     readOnly,
}

// Classify переводит ошибку вики в domain.Failure.
// ok == false — ошибка не классифицируется.
func Classify(err error, now time.Time) (domain.Failure, bool) {
	we, ok := wiki.AsError(err)
	if !ok {
		return domain.Failure{}, false
	}
	c, ok := classifiers[we.Code]
	if !ok {
		return domain.Failure{}, false
	}
	return c(we, now), true
}

// classifyPage переводит флаги прочитанной страницы в domain.Failure.
func classifyPage(p wiki.Page) (domain.Failure, bool) {
	switch {
	case p.Invalid:
		return domain.NewFailure(domain.FailureTitleInvalid), true
	case p.Missing:
		return domain.NewFailure(domain.FailurePageMissing), true
	default:
		return domain.Failure{}, false
	}
}
