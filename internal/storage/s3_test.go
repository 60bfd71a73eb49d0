package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

func TestRetryPolicy_StopsOnPermanentErrors(t *testing.T) {
	p := retryPolicy{attempts: 3, base: time.Millisecond}

	for _, permanent := range []error{ErrPreconditionFailed, ErrObjectNotFound} {
		calls := 0
		err := p.do(context.Background(), func() error {
			calls++
			return permanent
		})
		if !errors.Is(err, permanent) || calls != 1 {
			t.Errorf("%v: got err=%v after %d calls, want one call", permanent, err, calls)
		}
	}
}

func TestRetryPolicy_RetriesTransientErrors(t *testing.T) {
	p := retryPolicy{attempts: 3, base: time.Millisecond}
	transient := errors.New("connection reset")

	calls := 0
	err := p.do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("got err=%v after %d calls, want success on third", err, calls)
	}

	calls = 0
	err = p.do(context.Background(), func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) || calls != 4 {
		t.Errorf("got err=%v after %d calls, want 4 attempts", err, calls)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	p := retryPolicy{attempts: 3, base: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.do(ctx, func() error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("got err=%v after %d calls, want context.Canceled", err, calls)
	}
}

func TestWriteCondition(t *testing.T) {
	in := &s3.PutObjectInput{}
	writeCondition{ifNoneMatch: true}.apply(in)
	if in.IfNoneMatch == nil || *in.IfNoneMatch != "*" || in.IfMatch != nil {
		t.Errorf("create-only condition not applied: %+v", in)
	}

	in = &s3.PutObjectInput{}
	writeCondition{ifMatch: "abc"}.apply(in)
	if in.IfMatch == nil || *in.IfMatch != "abc" || in.IfNoneMatch != nil {
		t.Errorf("if-match condition not applied: %+v", in)
	}

	in = &s3.PutObjectInput{}
	writeCondition{}.apply(in)
	if in.IfMatch != nil || in.IfNoneMatch != nil {
		t.Errorf("unconditional put carries a precondition: %+v", in)
	}
}

func TestPreconditionFailed(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&smithy.GenericAPIError{Code: "PreconditionFailed"}, true},
		{&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}, true},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{errors.New("operation error S3: PutObject, https response error StatusCode: 412"), true},
		{errors.New("dial tcp: timeout"), false},
	}
	for _, c := range cases {
		if got := preconditionFailed(c.err); got != c.want {
			t.Errorf("preconditionFailed(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
