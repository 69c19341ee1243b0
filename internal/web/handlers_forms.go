package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/r4u-dev/r4u-console/internal/api"
	"github.com/r4u-dev/r4u-console/internal/forms"
	"github.com/r4u-dev/r4u-console/internal/taskpage"
)

// HandleCreateImplementation creates a new immutable version from the
// form post and selects it on redirect.
func (h *Handlers) HandleCreateImplementation(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	back := func(msg string) {
		redirectTask(w, r, taskID, url.Values{"tab": {"implementations"}, "error": {msg}})
	}

	version := strings.TrimSpace(r.PostFormValue("version"))
	if version == "" {
		back("version is required")
		return
	}

	tools, err := forms.ParseTools(r.PostFormValue("tools"))
	if err != nil {
		back(err.Error())
		return
	}

	req := api.CreateImplementationRequest{
		TaskID:  taskID,
		Version: version,
		Model:   r.PostFormValue("model"),
		Prompt:  r.PostFormValue("prompt"),
		Tools:   tools,
	}
	if v := strings.TrimSpace(r.PostFormValue("temperature")); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			back("temperature must be a number")
			return
		}
		req.Settings.Temperature = &temp
	}
	if v := strings.TrimSpace(r.PostFormValue("max_output_tokens")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			back("max output tokens must be an integer")
			return
		}
		req.Settings.MaxOutputTokens = &n
	}

	impl, err := h.backend.CreateImplementation(r.Context(), req)
	if err != nil {
		h.backendFailed(r.Context(), "create_implementation", err)
		back(userMessage(err, "the version could not be created"))
		return
	}
	redirectTask(w, r, taskID, url.Values{"tab": {"implementations"}, "created": {impl.Version}})
}

// HandleDeleteImplementation deletes a version, refusing the one the task
// serves in production.
func (h *Handlers) HandleDeleteImplementation(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	implID, ok := pathID(w, r, "impl_id")
	if !ok {
		return
	}
	back := func(msg string) {
		redirectTask(w, r, taskID, url.Values{"tab": {"implementations"}, "error": {msg}})
	}

	task, err := h.backend.GetTask(r.Context(), taskID)
	if err != nil {
		h.backendFailed(r.Context(), "get_task", err)
		back("the task could not be loaded")
		return
	}
	impls, err := h.backend.ListImplementations(r.Context(), taskID)
	if err != nil {
		h.backendFailed(r.Context(), "list_implementations", err)
		back("the versions could not be loaded")
		return
	}

	var target *api.Implementation
	for i := range impls {
		if impls[i].ID == implID {
			target = &impls[i]
			break
		}
	}
	if target == nil {
		back("that version no longer exists")
		return
	}
	if err := taskpage.CheckDeletable(task, target.Version); err != nil {
		back("the production version cannot be deleted")
		return
	}

	if err := h.backend.DeleteImplementation(r.Context(), implID); err != nil {
		h.backendFailed(r.Context(), "delete_implementation", err)
		back(userMessage(err, "the version could not be deleted"))
		return
	}
	redirectTask(w, r, taskID, url.Values{"tab": {"implementations"}})
}

// HandleRunEvaluation starts an evaluation of one version and redirects
// to the evaluation page.
func (h *Handlers) HandleRunEvaluation(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	implID, ok := pathID(w, r, "impl_id")
	if !ok {
		return
	}

	eval, err := h.backend.RunEvaluation(r.Context(), implID)
	if err != nil {
		h.backendFailed(r.Context(), "run_evaluation", err)
		redirectTask(w, r, taskID, url.Values{
			"tab":   {"evaluation"},
			"error": {userMessage(err, "the evaluation could not be started")},
		})
		return
	}
	http.Redirect(w, r, "/evaluations/"+strconv.FormatInt(eval.ID, 10), http.StatusSeeOther)
}

// HandleSaveEvaluationConfig upserts the task's score weights and grader
// selection as a whole.
func (h *Handlers) HandleSaveEvaluationConfig(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	back := func(msg string) {
		redirectTask(w, r, taskID, url.Values{"tab": {"evaluation"}, "error": {msg}})
	}

	cfg := api.EvaluationConfig{}
	var err error
	if cfg.QualityWeight, err = formFloat(r, "quality_weight"); err != nil {
		back("quality weight must be a number")
		return
	}
	if cfg.CostWeight, err = formFloat(r, "cost_weight"); err != nil {
		back("cost weight must be a number")
		return
	}
	if cfg.TimeWeight, err = formFloat(r, "time_weight"); err != nil {
		back("time weight must be a number")
		return
	}
	for _, raw := range formValues(r, "grader_ids") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			back("invalid grader selection")
			return
		}
		cfg.GraderIDs = append(cfg.GraderIDs, id)
	}

	if _, err := h.backend.PutEvaluationConfig(r.Context(), taskID, cfg); err != nil {
		h.backendFailed(r.Context(), "put_evaluation_config", err)
		back(userMessage(err, "the config could not be saved"))
		return
	}
	redirectTask(w, r, taskID, url.Values{"tab": {"evaluation"}})
}

// HandleCreateTestCase adds a test case from validated JSON form fields.
func (h *Handlers) HandleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	back := func(msg string) {
		redirectTask(w, r, taskID, url.Values{"tab": {"test-cases"}, "error": {msg}})
	}

	args, err := forms.ParseArguments(r.PostFormValue("arguments"))
	if err != nil {
		back(err.Error())
		return
	}
	expected, err := forms.ParseExpected(r.PostFormValue("expected_output"))
	if err != nil {
		back(err.Error())
		return
	}

	req := api.CreateTestCaseRequest{
		TaskID:         taskID,
		Arguments:      args,
		ExpectedOutput: expected,
	}
	if d := strings.TrimSpace(r.PostFormValue("description")); d != "" {
		req.Description = &d
	}

	if _, err := h.backend.CreateTestCase(r.Context(), req); err != nil {
		h.backendFailed(r.Context(), "create_test_case", err)
		back(userMessage(err, "the test case could not be created"))
		return
	}
	redirectTask(w, r, taskID, url.Values{"tab": {"test-cases"}})
}

// HandleDeleteTestCase removes a test case.
func (h *Handlers) HandleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tcID, ok := pathID(w, r, "tc_id")
	if !ok {
		return
	}

	if err := h.backend.DeleteTestCase(r.Context(), tcID); err != nil {
		h.backendFailed(r.Context(), "delete_test_case", err)
		redirectTask(w, r, taskID, url.Values{
			"tab":   {"test-cases"},
			"error": {userMessage(err, "the test case could not be deleted")},
		})
		return
	}
	redirectTask(w, r, taskID, url.Values{"tab": {"test-cases"}})
}

// HandleCreateOptimization starts a server-side optimization job and
// begins polling it for the optimizations tab.
func (h *Handlers) HandleCreateOptimization(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	back := func(msg string) {
		redirectTask(w, r, taskID, url.Values{"tab": {"optimizations"}, "error": {msg}})
	}

	maxIter, err := formInt(r, "max_iterations")
	if err != nil || maxIter <= 0 {
		back("max iterations must be a positive integer")
		return
	}
	maxNoImprove, err := formInt(r, "max_consecutive_no_improvements")
	if err != nil || maxNoImprove <= 0 {
		back("max consecutive without improvement must be a positive integer")
		return
	}

	opt, err := h.backend.CreateOptimization(r.Context(), api.CreateOptimizationRequest{
		TaskID:                      taskID,
		MaxIterations:               maxIter,
		MaxConsecutiveNoImprovement: maxNoImprove,
		ChangeableFields:            formValues(r, "changeable_fields"),
	})
	if err != nil {
		h.backendFailed(r.Context(), "create_optimization", err)
		back(userMessage(err, "the optimization could not be started"))
		return
	}

	h.watchOptimization(opt)
	redirectTask(w, r, taskID, url.Values{"tab": {"optimizations"}})
}

// HandleDeleteOptimization removes a job, stopping its poll first when it
// is the one being followed.
func (h *Handlers) HandleDeleteOptimization(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	optID, ok := pathID(w, r, "opt_id")
	if !ok {
		return
	}

	h.mu.Lock()
	watching := h.activeOpt != nil && h.activeOpt.ID == optID
	if watching {
		h.activeOpt = nil
	}
	h.mu.Unlock()
	if watching {
		h.poller.Stop()
	}

	if err := h.backend.DeleteOptimization(r.Context(), optID); err != nil {
		h.backendFailed(r.Context(), "delete_optimization", err)
		redirectTask(w, r, taskID, url.Values{
			"tab":   {"optimizations"},
			"error": {userMessage(err, "the optimization could not be deleted")},
		})
		return
	}
	redirectTask(w, r, taskID, url.Values{"tab": {"optimizations"}})
}

// watchOptimization follows a just-created job until it reaches a
// terminal status. The poll outlives the creating request on purpose;
// Close stops it during shutdown.
func (h *Handlers) watchOptimization(opt *api.Optimization) {
	h.mu.Lock()
	h.activeOpt = opt
	h.mu.Unlock()

	h.poller.Start(context.Background(), opt.ID, func(snapshot *api.Optimization) {
		h.mu.Lock()
		h.activeOpt = snapshot
		h.mu.Unlock()
		if !snapshot.Status.Active() {
			h.logger.Info("optimization finished",
				"optimization_id", snapshot.ID,
				"status", snapshot.Status,
				"iterations", len(snapshot.Iterations))
		}
	})
}

// userMessage prefers the backend's own message for expected API errors
// and falls back to a generic one.
func userMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func formFloat(r *http.Request, key string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(r.PostFormValue(key)), 64)
}

func formInt(r *http.Request, key string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(r.PostFormValue(key)))
}
