package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamChat streams reply in fixed-size chunks.
type streamChat struct {
	reply   string
	err     error
	prompt  string
	onStart func()
}

func (c *streamChat) Chat(ctx context.Context, messages []longform.Message, opts ...longform.Option) (*longform.Response, error) {
	return nil, errors.New("not used")
}

func (c *streamChat) ChatStream(ctx context.Context, messages []longform.Message, opts ...longform.Option) (<-chan longform.StreamEvent, error) {
	c.prompt = messages[len(messages)-1].Content
	if c.onStart != nil {
		c.onStart()
	}
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan longform.StreamEvent, len(c.reply)/16+2)
	for i := 0; i < len(c.reply); i += 16 {
		ch <- longform.StreamEvent{Delta: c.reply[i:min(i+16, len(c.reply))]}
	}
	ch <- longform.StreamEvent{Done: true, Response: &longform.Response{Content: c.reply}}
	close(ch)
	return ch, nil
}

type fakeImages struct {
	fail    map[string]bool
	prompts []string
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string, opts ...longform.ImageOption) (*longform.ImageResponse, error) {
	f.prompts = append(f.prompts, prompt)
	for key := range f.fail {
		if strings.Contains(prompt, key) {
			return nil, errors.New("quota exceeded")
		}
	}
	return &longform.ImageResponse{Images: []longform.GeneratedImage{{URL: "https://img/" + strings.TrimPrefix(prompt, imageStylePrefix)}}}, nil
}

func bookJSON(pages int) string {
	var b strings.Builder
	b.WriteString("```json\n{\"title\": \"The Corner Shop\", \"subtitle\": \"Redis explained\", \"core_metaphor\": \"Redis is a corner shop\", \"pages\": [")
	for i := 1; i <= pages; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		b.WriteString(`{"page_number": ` + string(rune('0'+i%10)) + `, "title": "Page title", "content": "body", "image_description": "scene p` + string(rune('0'+i%10)) + `"}`)
	}
	b.WriteString("]}\n```")
	return b.String()
}

func newTask(t *testing.T) (*task.Manager, string) {
	t.Helper()
	tm := task.New(task.WithCleanupDelay(time.Hour))
	t.Cleanup(tm.Close)
	return tm, tm.Create()
}

func drain(t *testing.T, tm *task.Manager, id string) []task.Event {
	t.Helper()
	q, ok := tm.Queue(id)
	require.True(t, ok)
	var out []task.Event
	for {
		e, ok := q.Poll(context.Background(), time.Millisecond)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func byName(events []task.Event, name task.EventName) []task.Event {
	var out []task.Event
	for _, e := range events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func resultTypes(events []task.Event) []string {
	var out []string
	for _, e := range byName(events, task.EventResult) {
		out = append(out, e.Data["type"].(string))
	}
	return out
}

func TestRun(t *testing.T) {
	tm, id := newTask(t)
	chat := &streamChat{reply: bookJSON(3)}
	svc := New(chat, tm)

	book, err := svc.Run(context.Background(), id, Request{Content: "Why Redis beats MySQL for hot reads", PageCount: 3})
	require.NoError(t, err)
	require.Len(t, book.Pages, 3)
	assert.Equal(t, "The Corner Shop", book.Title)

	events := drain(t, tm, id)
	assert.Equal(t, []string{"concepts", "metaphors", "outline_complete", "page_content", "page_content", "page_content"}, resultTypes(events))
	assert.Equal(t, map[string]any{"concepts": []string{"redis", "mysql"}}, byName(events, task.EventResult)[0].Data["data"])

	streams := byName(events, task.EventStream)
	require.NotEmpty(t, streams)
	assert.Equal(t, chat.reply, streams[len(streams)-1].Data["accumulated"])

	last := events[len(events)-1]
	require.Equal(t, task.EventComplete, last.Name)
	outputs := last.Data["outputs"].(map[string]any)
	assert.Equal(t, 3, outputs["total_pages"])
	assert.Equal(t, DefaultStyle, outputs["style"])
	assert.Equal(t, DefaultAudience, outputs["target_audience"])

	p, ok := tm.Get(id)
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, p.Status)
	assert.Equal(t, 100, p.OverallProgress)

	assert.Contains(t, chat.prompt, "3-page illustrated explainer")
	assert.Contains(t, chat.prompt, "redis -> a corner shop")
}

func TestRunContentProgress(t *testing.T) {
	tm, id := newTask(t)
	_, err := New(&streamChat{reply: bookJSON(4)}, tm).Run(context.Background(), id, Request{Content: "x"})
	require.NoError(t, err)

	var percents []int
	for _, e := range byName(drain(t, tm, id), task.EventProgress) {
		if e.Data["stage"] == StageContent {
			percents = append(percents, e.Data["progress"].(int))
		}
	}
	assert.Equal(t, []int{10, 30, 50, 70, 90, 100}, percents)
}

func TestRunImages(t *testing.T) {
	tm, id := newTask(t)
	images := &fakeImages{fail: map[string]bool{"scene p6": true}}
	svc := New(&streamChat{reply: bookJSON(7)}, tm, WithImageProvider(images))

	book, err := svc.Run(context.Background(), id, Request{Content: "x", GenerateImages: true})
	require.NoError(t, err)

	require.Len(t, images.prompts, 2, "pages 1 and 6")
	assert.True(t, strings.HasPrefix(images.prompts[0], imageStylePrefix))
	assert.Equal(t, "https://img/scene p1", book.Pages[0].ImageURL)
	assert.Empty(t, book.Pages[5].ImageURL)

	events := drain(t, tm, id)
	errs := byName(events, task.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, StageImage, errs[0].Data["stage"])
	assert.Equal(t, true, errs[0].Data["recoverable"])
	assert.Contains(t, resultTypes(events), "page_image")
	assert.Equal(t, task.EventComplete, events[len(events)-1].Name)
}

func TestRunSkipsImagesUnlessRequested(t *testing.T) {
	tm, id := newTask(t)
	images := &fakeImages{}
	_, err := New(&streamChat{reply: bookJSON(2)}, tm, WithImageProvider(images)).Run(context.Background(), id, Request{Content: "x"})
	require.NoError(t, err)
	assert.Empty(t, images.prompts)
}

func TestRunOutlineFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  error
	}{
		{"not json", "Sorry, I cannot help with that.", ErrNoOutline},
		{"no pages", `{"title": "Empty", "pages": []}`, ErrNoPages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, id := newTask(t)
			_, err := New(&streamChat{reply: tt.reply}, tm).Run(context.Background(), id, Request{Content: "x"})
			assert.ErrorIs(t, err, tt.want)

			events := drain(t, tm, id)
			last := events[len(events)-1]
			assert.Equal(t, task.EventError, last.Name)
			assert.Equal(t, StageOutline, last.Data["stage"])
			assert.Equal(t, false, last.Data["recoverable"])

			p, _ := tm.Get(id)
			assert.Equal(t, task.StatusFailed, p.Status)
		})
	}
}

func TestRunChatFailureIsUnknownStage(t *testing.T) {
	tm, id := newTask(t)
	_, err := New(&streamChat{err: errors.New("connection reset")}, tm).Run(context.Background(), id, Request{Content: "x"})
	require.Error(t, err)

	events := drain(t, tm, id)
	last := events[len(events)-1]
	assert.Equal(t, task.EventError, last.Name)
	assert.Equal(t, StageUnknown, last.Data["stage"])
	assert.Equal(t, "connection reset", last.Data["message"])
}

func TestRunCancelled(t *testing.T) {
	tm, id := newTask(t)
	chat := &streamChat{reply: bookJSON(3)}
	chat.onStart = func() { assert.True(t, tm.Cancel(id)) }

	_, err := New(chat, tm).Run(context.Background(), id, Request{Content: "x"})
	assert.ErrorIs(t, err, errCancelled)

	events := drain(t, tm, id)
	assert.Equal(t, task.EventCancelled, events[len(events)-1].Name)
	assert.Empty(t, byName(events, task.EventStream), "events after cancellation are dropped")

	p, _ := tm.Get(id)
	assert.Equal(t, task.StatusCancelled, p.Status)
}

func TestStart(t *testing.T) {
	tm, id := newTask(t)
	New(&streamChat{reply: bookJSON(1)}, tm).Start(context.Background(), id, Request{Content: "x"})

	events, err := tm.Listen(context.Background(), id, 10*time.Millisecond)
	require.NoError(t, err)

	var last task.Event
	for e := range events {
		last = e
	}
	assert.Equal(t, task.EventComplete, last.Name)
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Content: "x"}.Validate())

	err := Request{Content: "  "}.Validate()
	assert.ErrorIs(t, err, ErrNoContent)
	assert.True(t, longform.IsUserInput(err))

	err = Request{Content: "x", PageCount: MaxPageCount + 1}.Validate()
	assert.True(t, longform.IsUserInput(err))
}
