package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sethvargo/go-retry"
	"github.com/spboyer/promptbench/internal/broadcast"
	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/store"
	"github.com/spboyer/promptbench/internal/template"
	"github.com/spboyer/promptbench/internal/validation"
)

// CreateRunRequest is the input of CreateRun. SystemPrompt and UserPrompt
// are templates rendered against Variables.
type CreateRunRequest struct {
	PromptID      string             `json:"promptId,omitempty"`
	PromptVersion int                `json:"promptVersion,omitempty"`
	Variables     map[string]any     `json:"variables,omitempty"`
	Models        []models.ModelSpec `json:"models"`
	SystemPrompt  string             `json:"systemPrompt,omitempty"`
	UserPrompt    string             `json:"userPrompt"`
	OutputSchema  map[string]any     `json:"outputSchema,omitempty"`
}

// Validate reports the first malformed field of r.
func (r *CreateRunRequest) Validate() error {
	if len(r.Models) == 0 {
		return models.InvalidRequest("models", "at least one model is required")
	}
	for i, spec := range r.Models {
		if spec.Model == "" {
			return models.InvalidRequest(fmt.Sprintf("models[%d].model", i), "must not be empty")
		}
		if t := spec.Temperature; t != nil && (*t < 0 || *t > 2) {
			return models.InvalidRequest(fmt.Sprintf("models[%d].temperature", i), "must be between 0 and 2, got %g", *t)
		}
		if spec.MaxTokens < 0 {
			return models.InvalidRequest(fmt.Sprintf("models[%d].maxTokens", i), "must not be negative")
		}
	}
	if r.PromptVersion < 0 {
		return models.InvalidRequest("promptVersion", "must not be negative")
	}
	if r.OutputSchema != nil {
		if _, err := validation.CompileSchema(r.OutputSchema); err != nil {
			return models.InvalidRequest("outputSchema", "%v", err)
		}
	}
	return nil
}

// runState is the in-memory bookkeeping of a run this orchestrator drives.
// mu serializes publishes with subscriber registration, so a new subscriber
// gets the latest state of every result followed by exactly the events
// published after it.
type runState struct {
	id   string
	wg   sync.WaitGroup
	done chan struct{}

	mu       sync.Mutex
	latest   []*models.Event
	finished bool
	fatalErr string
}

func (st *runState) subscribe(b *broadcast.Broadcaster) *broadcast.Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()

	var backlog []models.Event
	for _, evt := range st.latest {
		if evt != nil {
			backlog = append(backlog, *evt)
		}
	}

	if st.finished {
		return broadcast.Replay(st.id, append(backlog, models.DoneEvent(st.fatalErr)))
	}
	return b.Register(st.id, backlog...)
}

// task is everything one goroutine needs to drive result i.
type task struct {
	index    int
	spec     models.ModelSpec
	request  *execution.Request
	wantJSON bool
}

// CreateRun validates and persists a new run, launches one invocation per
// model spec and returns the run as persisted, before any invocation has
// finished.
func (o *Orchestrator) CreateRun(ctx context.Context, req CreateRunRequest) (*models.Run, error) {
	run, st, tasks, err := o.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	o.dispatch(ctx, st, tasks)
	return run, nil
}

// CreateRunAndSubscribe is CreateRun with a subscription registered before
// any task is launched, so the caller observes every transition.
func (o *Orchestrator) CreateRunAndSubscribe(ctx context.Context, req CreateRunRequest) (*models.Run, *broadcast.Subscription, error) {
	run, st, tasks, err := o.createRun(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	sub := st.subscribe(o.bcast)
	o.dispatch(ctx, st, tasks)
	return run, sub, nil
}

func (o *Orchestrator) createRun(ctx context.Context, req CreateRunRequest) (*models.Run, *runState, []task, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, nil, err
	}

	system := template.Render(req.SystemPrompt, req.Variables)
	user := template.Render(req.UserPrompt, req.Variables)
	messages := execution.BuildMessages(system, user)

	var format *execution.ResponseFormat
	if req.OutputSchema != nil {
		format = execution.JSONSchemaFormat(req.OutputSchema)
	}

	run := models.NewRun(o.newID(), req.Models, o.now().UTC())
	if req.PromptID != "" {
		promptID := req.PromptID
		run.PromptID = &promptID
	}
	if req.PromptVersion > 0 {
		run.PromptVersion = req.PromptVersion
	}
	for k, v := range req.Variables {
		run.Variables[k] = v
	}

	tasks := make([]task, len(req.Models))
	for i, spec := range req.Models {
		temperature := o.defaultTemperature
		if spec.Temperature != nil {
			temperature = *spec.Temperature
		}
		maxTokens := o.maxTokens
		if spec.MaxTokens > 0 {
			maxTokens = spec.MaxTokens
		}

		tasks[i] = task{
			index: i,
			spec:  spec,
			request: &execution.Request{
				Model:          spec.Model,
				Messages:       messages,
				Temperature:    temperature,
				MaxTokens:      maxTokens,
				ResponseFormat: format,
				WebSearch:      spec.WebSearch,
			},
			wantJSON: format != nil,
		}
	}

	if err := o.store.Insert(ctx, run); err != nil {
		return nil, nil, nil, fmt.Errorf("creating run: %w", err)
	}

	st := &runState{
		id:     run.ID,
		done:   make(chan struct{}),
		latest: make([]*models.Event, len(req.Models)),
	}

	o.mu.Lock()
	o.active[run.ID] = st
	o.mu.Unlock()

	o.logger.Info("Run created", "runID", run.ID, "models", len(req.Models))
	return run.Clone(), st, tasks, nil
}

// dispatch launches every task and the goroutine that finishes the run once
// they have all settled. Tasks outlive the request that created the run.
func (o *Orchestrator) dispatch(ctx context.Context, st *runState, tasks []task) {
	ctx = context.WithoutCancel(ctx)

	o.wg.Add(1)
	st.wg.Add(len(tasks))
	for _, t := range tasks {
		go o.runTask(ctx, st, t)
	}

	go func() {
		defer o.wg.Done()
		st.wg.Wait()
		o.finish(st)
	}()
}

func (o *Orchestrator) runTask(ctx context.Context, st *runState, t task) {
	defer st.wg.Done()

	running := models.Result{Model: t.spec.Model, Status: models.StatusRunning}
	if err := o.transition(ctx, st, t.index, models.RunningFields(t.index), running); err != nil {
		o.abort(st, t.index, err)
		return
	}

	resp, err := o.invoke(ctx, t.request)

	var result models.Result
	if err != nil {
		msg := execution.ErrorMessage(err)
		o.logger.Warn("Model invocation failed", "runID", st.id, "index", t.index, "model", t.spec.Model, "error", msg)
		result = models.Result{Model: t.spec.Model, Status: models.StatusFailed, Error: msg}
	} else {
		result = models.Result{
			Model:     t.spec.Model,
			Status:    models.StatusCompleted,
			Output:    resp.Output,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			LatencyMs: resp.LatencyMs,
			Cost:      resp.Cost,
		}
		if t.wantJSON {
			if parsed, parseErr := execution.ParseJSONOutput(resp.Output); parseErr == nil {
				result.StructuredOutput = parsed
			} else {
				o.logger.Debug("Structured output is not valid JSON", "runID", st.id, "index", t.index, "error", parseErr)
			}
		}
	}

	var fields models.Fields
	if result.Status == models.StatusCompleted {
		fields = models.CompletedFields(t.index, result)
	} else {
		fields = models.FailedFields(t.index, result.Error)
	}

	if err := o.transition(ctx, st, t.index, fields, result); err != nil {
		o.abort(st, t.index, err)
	}
}

// invoke calls the model backend, turning a panic into an error so one
// misbehaving backend can't take down the process or its sibling tasks.
func (o *Orchestrator) invoke(ctx context.Context, req *execution.Request) (resp *execution.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &execution.InvocationError{Model: req.Model, Message: fmt.Sprintf("model invocation panicked: %v", r)}
		}
	}()

	resp, err = o.invoker.Invoke(ctx, req)
	if err == nil && resp == nil {
		err = &execution.InvocationError{Model: req.Model, Message: "backend returned no response"}
	}
	return resp, err
}

// transition persists fields and, only once that succeeded, records and
// broadcasts the new state of result i.
func (o *Orchestrator) transition(ctx context.Context, st *runState, i int, fields models.Fields, result models.Result) error {
	if err := o.persist(ctx, st.id, fields); err != nil {
		return err
	}

	evt := models.ProgressEvent(i, result)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.latest[i] = &evt
	o.bcast.Publish(st.id, evt)
	return nil
}

// persist applies fields, retrying store failures with exponential backoff.
func (o *Orchestrator) persist(ctx context.Context, runID string, fields models.Fields) error {
	backoff := retry.WithMaxRetries(o.persistRetries, retry.NewExponential(o.persistBackoff))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := o.store.UpdateFields(ctx, runID, fields)

		var persistErr *store.PersistenceError
		if errors.As(err, &persistErr) {
			o.logger.Warn("Persisting run update failed", "runID", runID, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// abort records that a task could not persist its state. The run still
// finishes; its done event carries the error.
func (o *Orchestrator) abort(st *runState, i int, err error) {
	o.logger.Error("Abandoning result after persistence failure", "runID", st.id, "index", i, "error", err)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.fatalErr == "" {
		st.fatalErr = fmt.Sprintf("result %d could not be persisted: %v", i, err)
	}
}

func (o *Orchestrator) finish(st *runState) {
	st.mu.Lock()
	st.finished = true
	fatal := st.fatalErr
	o.bcast.Publish(st.id, models.DoneEvent(fatal))
	st.mu.Unlock()

	close(st.done)

	if fatal != "" {
		o.logger.Error("Run finished with errors", "runID", st.id, "error", fatal)
	} else {
		o.logger.Info("Run finished", "runID", st.id)
	}

	o.bcast.ReleaseAfter(st.id, o.doneGrace, func() {
		o.mu.Lock()
		delete(o.active, st.id)
		o.mu.Unlock()
	})
}
