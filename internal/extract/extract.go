// Package extract defines the document-extraction seam. When a file lands on
// a bill or purchase, the effects pipeline hands the resource to an Extractor
// and stamps whatever came back onto it.
package extract

import "context"

// Result carries values pulled out of an uploaded document. Zero fields mean
// the extractor found nothing for that slot.
type Result struct {
	PONumber string
	VendorID string
}

// Extractor reads the documents attached to a resource and returns extracted
// field values. The extractor resolves the resource's files itself.
// Implementations may call external services; errors abort the triggering
// update.
type Extractor interface {
	ExtractContent(ctx context.Context, accountID, resourceID string) (Result, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, accountID, resourceID string) (Result, error)

func (f Func) ExtractContent(ctx context.Context, accountID, resourceID string) (Result, error) {
	return f(ctx, accountID, resourceID)
}

// Noop is an Extractor that never finds anything.
type Noop struct{}

func (Noop) ExtractContent(ctx context.Context, accountID, resourceID string) (Result, error) {
	return Result{}, nil
}
