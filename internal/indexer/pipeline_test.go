package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/heimdex/edl-indexer/internal/frame"
	"github.com/heimdex/edl-indexer/internal/metrics"
	"github.com/heimdex/edl-indexer/internal/publish"
	"github.com/heimdex/edl-indexer/internal/sheets"
	"github.com/heimdex/edl-indexer/internal/timecode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const threeClipEDL = `TITLE: Reel 1
FCM: NON-DROP FRAME

001  AX       V     C        00:00:00:00 00:00:04:00 00:00:01:00 00:00:05:00
*FROM CLIP NAME: Intro
002  AX       V     C        00:00:04:00 00:00:08:00 00:00:05:00 00:00:09:00
*FROM CLIP NAME: Interview
003  AX       V     C        00:00:08:00 00:00:12:00 00:00:09:12 00:00:13:00
*FROM CLIP NAME: Outro
`

type fakeFrames struct {
	mu      sync.Mutex
	misses  map[string]bool
	offsets []float64
}

func (f *fakeFrames) Extract(ctx context.Context, videoPath, clipName string, offset float64) frame.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if f.misses[clipName] {
		return frame.Result{Miss: fmt.Errorf("%w: past end of video", frame.ErrNoFrame)}
	}
	return frame.Result{Artifact: &frame.Artifact{ClipName: clipName, Offset: offset, Image: []byte{0xFF, 0xD8, byte(len(clipName))}}}
}

type fakePublisher struct {
	mu       sync.Mutex
	n        int
	names    []string
	at       []time.Time
	failFor  map[string]error
	linkFail map[string]error
}

func (p *fakePublisher) Publish(ctx context.Context, image []byte, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	p.at = append(p.at, time.Now())
	for key, err := range p.failFor {
		if strings.Contains(name, key) {
			return "", err
		}
	}
	p.n++
	return fmt.Sprintf("artifact-%d", p.n), nil
}

func (p *fakePublisher) Link(ctx context.Context, id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.linkFail[id]; ok {
		return "", err
	}
	return "https://frames.test/" + id, nil
}

type fakeTables struct {
	mu        sync.Mutex
	created   []string
	written   [][][]string
	heights   []sheets.RowRange
	pixels    []int64
	createErr error
	writeErr  error
	heightErr error
}

func (t *fakeTables) CreateSheet(ctx context.Context, documentID, title string) (sheets.Sheet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.createErr != nil {
		return sheets.Sheet{}, t.createErr
	}
	t.created = append(t.created, title)
	return sheets.Sheet{ID: int64(len(t.created)), Title: title}, nil
}

func (t *fakeTables) WriteRange(ctx context.Context, documentID string, sheet sheets.Sheet, startCell string, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if startCell != "A1" {
		return fmt.Errorf("unexpected start cell %s", startCell)
	}
	t.written = append(t.written, rows)
	return nil
}

func (t *fakeTables) SetRowHeight(ctx context.Context, documentID string, sheet sheets.Sheet, rows sheets.RowRange, pixels int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.heights = append(t.heights, rows)
	t.pixels = append(t.pixels, pixels)
	return t.heightErr
}

func (t *fakeTables) SheetURL(documentID string, sheet sheets.Sheet) string {
	return fmt.Sprintf("sheet://%s/%d", documentID, sheet.ID)
}

type fixture struct {
	frames *fakeFrames
	pub    *fakePublisher
	tables *fakeTables
}

func newPipeline(t *testing.T, opts Options) (*Pipeline, *fixture) {
	t.Helper()
	fx := &fixture{
		frames: &fakeFrames{misses: map[string]bool{}},
		pub:    &fakePublisher{failFor: map[string]error{}, linkFail: map[string]error{}},
		tables: &fakeTables{},
	}
	p, err := New(Deps{
		Frames:    fx.frames,
		Publisher: fx.pub,
		Linker:    fx.pub,
		Tables:    fx.tables,
		Backend:   "fake",
		Logger:    testLogger(),
	}, opts)
	require.NoError(t, err)
	return p, fx
}

func request() Request {
	return Request{
		EDLText:    threeClipEDL,
		VideoPath:  "/videos/reel1.mov",
		SheetTitle: "Reel 1",
		DocumentID: "doc-1",
	}
}

func TestRun_MissedClipIsOmitted(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.frames.misses["Interview"] = true

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"Image", "Filename"}, res.Rows[0])
	assert.Equal(t, []string{`=IMAGE("https://frames.test/artifact-1")`, "Intro"}, res.Rows[1])
	assert.Equal(t, []string{`=IMAGE("https://frames.test/artifact-2")`, "Outro"}, res.Rows[2])

	require.Len(t, res.Clips, 3)
	assert.Equal(t, OutcomePublished, res.Clips[0].Outcome)
	assert.Equal(t, OutcomeFrameMiss, res.Clips[1].Outcome)
	assert.Contains(t, res.Clips[1].Reason, "past end of video")
	assert.Equal(t, OutcomePublished, res.Clips[2].Outcome)
	assert.Equal(t, 2, res.Published())
	assert.Equal(t, 1, res.Skipped())

	assert.Equal(t, []float64{1, 5, 9.5}, fx.frames.offsets)
	assert.Equal(t, []string{"screengrab_0_Intro.jpg", "screengrab_2_Outro.jpg"}, fx.pub.names)

	require.Len(t, fx.tables.written, 1)
	assert.Equal(t, res.Rows, fx.tables.written[0])
	assert.Equal(t, "sheet://doc-1/1", res.SheetURL)
	assert.Equal(t, sheets.Sheet{ID: 1, Title: "Reel 1"}, res.Sheet)
}

func TestRun_RowHeightCoversDataRows(t *testing.T) {
	p, fx := newPipeline(t, Options{RowHeightPx: 120})

	_, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	require.Equal(t, []sheets.RowRange{{Start: 1, End: 4}}, fx.tables.heights)
	assert.Equal(t, []int64{120}, fx.tables.pixels)
}

func TestRun_SingleDataRowIsFormatted(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.frames.misses["Interview"] = true
	fx.frames.misses["Outro"] = true

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []sheets.RowRange{{Start: 1, End: 2}}, fx.tables.heights)
	assert.Equal(t, []int64{DefaultRowHeightPx}, fx.tables.pixels)
}

func TestRun_NoDataRowsSkipsFormatting(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	for _, name := range []string{"Intro", "Interview", "Outro"} {
		fx.frames.misses[name] = true
	}

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Image", "Filename"}}, res.Rows)
	assert.Empty(t, fx.tables.heights)
	assert.Empty(t, fx.pub.names)
	require.Len(t, fx.tables.created, 1, "a header-only sheet is still written")
}

func TestRun_MalformedTimecodeAbortsBeforePublishing(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	req := request()
	req.EDLText = threeClipEDL + "004  AX  V  C  00:00:12:00 00:00:13:00 00:00:1x:00 00:00:14:00\n"

	res, err := p.Run(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, StepParse, FailedStep(err))
	assert.ErrorIs(t, err, timecode.ErrMalformed)

	assert.Empty(t, fx.frames.offsets)
	assert.Empty(t, fx.pub.names)
	assert.Empty(t, fx.tables.created)
}

func TestRun_PublishFailureSkipsRow(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.pub.failFor["Interview"] = &publish.Error{Op: "upload", StatusCode: 503, Err: errors.New("backend unavailable")}

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Intro", res.Rows[1][1])
	assert.Equal(t, "Outro", res.Rows[2][1])
	assert.Equal(t, OutcomePublishFailed, res.Clips[1].Outcome)
	assert.Contains(t, res.Clips[1].Reason, "backend unavailable")
}

func TestRun_LinkFailureSkipsRow(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.pub.linkFail["artifact-1"] = errors.New("no link")

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Interview", res.Rows[1][1])
	assert.Equal(t, OutcomePublishFailed, res.Clips[0].Outcome)
	assert.Equal(t, "artifact-1", res.Clips[0].ArtifactID)
}

func TestRun_CreateSheetFailureIsFatal(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.tables.createErr = errors.New("a sheet with this name already exists")

	res, err := p.Run(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, StepCreateSheet, FailedStep(err))
	assert.ErrorIs(t, err, ErrTableWrite)

	// frames published before the failure stay published
	assert.Len(t, fx.pub.names, 3)
}

func TestRun_TableFailureCountedByStatus(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.tables.createErr = &googleapi.Error{Code: 400, Message: "duplicate sheet name"}
	counter := metrics.TableFailuresTotal.WithLabelValues(string(StepCreateSheet), "400")
	before := testutil.ToFloat64(counter)

	_, err := p.Run(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRun_FrameMissCountedByKind(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.frames.misses["Interview"] = true
	noFrame := metrics.FrameMissesTotal.WithLabelValues("no_frame")
	before := testutil.ToFloat64(noFrame)

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published())
	assert.Equal(t, before+1, testutil.ToFloat64(noFrame))
}

func TestRun_WriteRangeFailureIsFatal(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.tables.writeErr = errors.New("quota exceeded")

	_, err := p.Run(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, StepWriteRange, FailedStep(err))
	assert.ErrorIs(t, err, ErrTableWrite)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, fx.tables.heights)
}

func TestRun_FormattingPolicy(t *testing.T) {
	t.Run("best effort", func(t *testing.T) {
		p, fx := newPipeline(t, Options{Formatting: FormattingBestEffort})
		fx.tables.heightErr = errors.New("invalid pixel size")

		res, err := p.Run(context.Background(), request())
		require.NoError(t, err)
		assert.Contains(t, res.FormattingError, "invalid pixel size")
		assert.Len(t, res.Rows, 4)
	})

	t.Run("strict", func(t *testing.T) {
		p, fx := newPipeline(t, Options{Formatting: FormattingStrict})
		fx.tables.heightErr = errors.New("invalid pixel size")

		res, err := p.Run(context.Background(), request())
		require.Error(t, err)
		assert.Nil(t, res)
		assert.Equal(t, StepFormatRows, FailedStep(err))
		assert.ErrorIs(t, err, ErrFormatting)
		assert.NotErrorIs(t, err, ErrTableWrite)
	})
}

func TestRun_RepeatedRunsAreNotDeduplicated(t *testing.T) {
	p, fx := newPipeline(t, Options{})

	first, err := p.Run(context.Background(), request())
	require.NoError(t, err)
	second, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Len(t, fx.pub.names, 6)
	assert.Len(t, fx.tables.created, 2)
	assert.NotEqual(t, first.Sheet.ID, second.Sheet.ID)
	assert.NotEqual(t, first.Clips[0].ArtifactID, second.Clips[0].ArtifactID)
	assert.NotEqual(t, first.Rows[1][0], second.Rows[1][0])
}

func TestRun_PublishesAreSpaced(t *testing.T) {
	delay := 40 * time.Millisecond
	p, fx := newPipeline(t, Options{PublishDelay: delay})

	_, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, fx.pub.at, 3)
	for i := 1; i < len(fx.pub.at); i++ {
		gap := fx.pub.at[i].Sub(fx.pub.at[i-1])
		// the limiter may fire a hair early relative to wall clock
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "gap %d", i)
	}
}

func TestRun_FirstPublishOfEachRunIsImmediate(t *testing.T) {
	p, fx := newPipeline(t, Options{PublishDelay: time.Hour})
	fx.frames.misses["Interview"] = true
	fx.frames.misses["Outro"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		res, err := p.Run(ctx, request())
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, 1, res.Published(), "run %d", i)
	}
}

func TestRun_MissesDoNotConsumeDelay(t *testing.T) {
	p, fx := newPipeline(t, Options{PublishDelay: time.Hour})
	fx.frames.misses["Interview"] = true
	fx.frames.misses["Outro"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.Run(ctx, request())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published())
}

func TestRun_ObserverSeesEveryClipInOrder(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	fx.frames.misses["Interview"] = true

	var seen []ClipOutcome
	req := request()
	req.Observer = ObserverFunc(func(c ClipOutcome) { seen = append(seen, c) })

	_, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, seen, 3)
	for i, c := range seen {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, OutcomeFrameMiss, seen[1].Outcome)
	assert.Equal(t, "https://frames.test/artifact-1", seen[0].URL)
}

func TestRun_CancelledContext(t *testing.T) {
	p, fx := newPipeline(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fx.tables.created)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	p, _ := newPipeline(t, Options{PublishDelay: -time.Second})
	opts := p.Options()
	assert.Equal(t, DefaultFrameRate, opts.FrameRate)
	assert.Equal(t, time.Duration(0), opts.PublishDelay)
	assert.Equal(t, int64(DefaultRowHeightPx), opts.RowHeightPx)
	assert.Equal(t, "best_effort", opts.Formatting.String())
}
