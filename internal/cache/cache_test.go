package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panoptes/internal/instrument"
	"panoptes/internal/ir"
	"panoptes/internal/parser"
)

const kernel = `.version 7.0
.target sm_80
.address_size 64
.visible .entry scale(
	.param .u64 p_data
)
{
	.reg .b64 %rd<2>;
	.reg .f32 %f<3>;
	ld.param.u64 %rd1, [p_data];
	ld.global.f32 %f1, [%rd1];
	add.f32 %f2, %f1, %f1;
	st.global.f32 [%rd1], %f2;
	ret;
}
`

const unterminated = `.version 7.0
.target sm_80
.address_size 64
.visible .entry scale(
	.param .u64 p_data
)
{
	ret;
`

type countingTranslator struct {
	inner Translator
	calls atomic.Int32
	// gate, when set, holds every translation until closed.
	gate chan struct{}
}

func newCounting() *countingTranslator {
	return &countingTranslator{inner: NewPTXTranslator(instrument.Options{})}
}

func (c *countingTranslator) Translate(src []byte) (*ir.Module, instrument.Report, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.inner.Translate(src)
}

type recordingObserver struct {
	mu           sync.Mutex
	hits, misses int
	translated   int
	failed       int
}

func (o *recordingObserver) Lookup(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) Translated(_ time.Duration, _ instrument.Report, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
	} else {
		o.translated++
	}
}

func TestTranslateIsCached(t *testing.T) {
	tr := newCounting()
	obs := &recordingObserver{}
	c := New(tr, Options{Observer: obs})

	first, err := c.Translate(context.Background(), []byte(kernel))
	require.NoError(t, err)
	second, err := c.Translate(context.Background(), []byte(kernel))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), tr.calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Translations: 1}, c.Stats())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(2), first.Refs())
	first.Release()
	assert.Equal(t, int64(1), first.Refs())

	assert.Equal(t, 2, first.Report.Guards)
	assert.True(t, first.Module.Instrumented)
	assert.Equal(t, ir.Print(first.Module), string(first.Text))
	assert.Equal(t, FingerprintOf([]byte(kernel)), first.Fingerprint)

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
	assert.Equal(t, 1, obs.translated)
}

func TestConcurrentRequestsShareOneTranslation(t *testing.T) {
	tr := newCounting()
	tr.gate = make(chan struct{})
	c := New(tr, Options{})

	const n = 32
	entries := make([]*Entry, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = c.Translate(context.Background(), []byte(kernel))
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(tr.gate)
	wg.Wait()

	assert.Equal(t, int32(1), tr.calls.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Same(t, entries[0], entries[i])
	}
	assert.Equal(t, int64(n), entries[0].Refs())
	assert.Equal(t, uint64(1), c.Stats().Translations)
}

func TestOtherFingerprintsDoNotWait(t *testing.T) {
	slow := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	inner := NewPTXTranslator(instrument.Options{})
	tr := TranslatorFunc(func(src []byte) (*ir.Module, instrument.Report, error) {
		if string(src) == kernel {
			started.Done()
			<-slow
		}
		return inner.Translate(src)
	})
	c := New(tr, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Translate(context.Background(), []byte(kernel))
		done <- err
	}()
	started.Wait()

	other := ".version 7.0\n.target sm_80\n.entry k()\n{\n\tret;\n}\n"
	e, err := c.Translate(context.Background(), []byte(other))
	require.NoError(t, err)
	assert.NotNil(t, e.Module.Function("k"))

	close(slow)
	require.NoError(t, <-done)
	assert.Equal(t, 2, c.Len())
}

func TestFailuresAreNotCached(t *testing.T) {
	tr := newCounting()
	c := New(tr, Options{})

	_, err := c.Translate(context.Background(), []byte(unterminated))
	require.Error(t, err)
	var terr *TranslationError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, FingerprintOf([]byte(unterminated)), terr.Fingerprint)
	var serr *parser.SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "'}'", serr.Expected)

	_, ok := c.Get(FingerprintOf([]byte(unterminated)))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	_, err = c.Translate(context.Background(), []byte(unterminated))
	require.Error(t, err)
	assert.Equal(t, int32(2), tr.calls.Load(), "failure must be retried")

	e, err := c.Translate(context.Background(), []byte(unterminated+"}\n"))
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, Stats{Misses: 3, Translations: 1, Failures: 2}, c.Stats())
}

func TestAbandonedWaiterDoesNotCancelTranslation(t *testing.T) {
	tr := newCounting()
	tr.gate = make(chan struct{})
	c := New(tr, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Translate(ctx, []byte(kernel))
		errc <- err
	}()
	for tr.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(tr.gate)
	e, err := c.Translate(context.Background(), []byte(kernel))
	require.NoError(t, err)
	assert.True(t, e.Module.Instrumented)
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestDiskTierSurvivesRestart(t *testing.T) {
	store, err := OpenDiskStore(t.TempDir())
	require.NoError(t, err)

	first := New(newCounting(), Options{Store: store})
	original, err := first.Translate(context.Background(), []byte(kernel))
	require.NoError(t, err)

	tr := newCounting()
	second := New(tr, Options{Store: store})
	restored, err := second.Translate(context.Background(), []byte(kernel))
	require.NoError(t, err)

	assert.True(t, restored.FromDisk)
	assert.Equal(t, string(original.Text), string(restored.Text))
	assert.Equal(t, original.Report, restored.Report)
	assert.True(t, restored.Module.Instrumented)
	assert.Equal(t, uint64(1), second.Stats().DiskHits)
	assert.Zero(t, second.Stats().Translations)
	// Restoring parses the stored text but the pass leaves it alone.
	assert.Equal(t, int32(1), tr.calls.Load())
}
