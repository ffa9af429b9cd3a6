// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package docidsender implements the Pusher the embedding Adaptor's
// GetDocIds uses to hand batches of DocId records (and, separately,
// named-resource ACL roots) to the Appliance, preserving order and
// reporting the first record that failed to push so a caller can
// resume from there on the next run.
package docidsender

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
	"github.com/tomtom215/adaptorlib/internal/adaptorerr"
	"github.com/tomtom215/adaptorlib/internal/feed"
	"github.com/tomtom215/adaptorlib/internal/journal"
)

// Pusher is implemented by Sender and passed to the Adaptor's
// GetDocIds so the adaptor never talks to the feed sender directly.
type Pusher interface {
	PushRecords(ctx context.Context, batch []docid.Record) (*docid.Record, error)
	PushNamedResources(ctx context.Context, resources map[docid.ID]acl.ACL, errHandler feed.ErrorHandler) error
}

// Sender composes and sends one feed per PushRecords/PushNamedResources
// call via the underlying feed.Sender, recording outcomes in a Journal.
type Sender struct {
	Datasource string
	Codec      *docid.Codec
	FeedSender *feed.Sender
	Journal    *journal.Journal
	FeedType   feed.Type
}

// PushRecords composes and sends batch as a single feed, preserving
// order end to end. On success it returns (nil, nil). On the first
// send failure it returns the offending batch's first record (per the
// library's resumable-push semantics: callers track that record's
// position in their own cursor and resume GetDocIds from there on the
// next run) along with the error.
func (s *Sender) PushRecords(ctx context.Context, batch []docid.Record) (*docid.Record, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	blob, err := feed.Compose(s.Datasource, s.FeedType, s.Codec, batch)
	if err != nil {
		s.Journal.RecordPermanentFailure()
		return &batch[0], fmt.Errorf("docidsender: compose: %w", err)
	}

	if err := s.FeedSender.Send(ctx, blob); err != nil {
		if errors.Is(err, adaptorerr.ErrPermanentIO) {
			s.Journal.RecordPermanentFailure()
		} else {
			s.Journal.RecordTransientFailure()
		}
		return &batch[0], fmt.Errorf("docidsender: send: %w", err)
	}

	s.Journal.RecordSuccess(len(batch))
	return nil, nil
}

// PushNamedResources composes and sends an ACL-only feed establishing
// inheritance roots, using errHandler (falling back to the sender's
// own default) for this call only.
func (s *Sender) PushNamedResources(ctx context.Context, resources map[docid.ID]acl.ACL, errHandler feed.ErrorHandler) error {
	if len(resources) == 0 {
		return nil
	}

	blob, err := feed.ComposeNamedResources(s.Datasource, s.Codec, resources)
	if err != nil {
		s.Journal.RecordPermanentFailure()
		return fmt.Errorf("docidsender: compose named resources: %w", err)
	}

	original := s.FeedSender.ErrorHandler
	if errHandler != nil {
		s.FeedSender.ErrorHandler = errHandler
		defer func() { s.FeedSender.ErrorHandler = original }()
	}

	if err := s.FeedSender.Send(ctx, blob); err != nil {
		if errors.Is(err, adaptorerr.ErrPermanentIO) {
			s.Journal.RecordPermanentFailure()
		} else {
			s.Journal.RecordTransientFailure()
		}
		return fmt.Errorf("docidsender: send named resources: %w", err)
	}

	s.Journal.RecordSuccess(len(resources))
	return nil
}
