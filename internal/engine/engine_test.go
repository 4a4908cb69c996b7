package engine_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/rebasekeeper/internal/engine"
	"github.com/skaphos/rebasekeeper/internal/forge"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// mockRunner answers git invocations from a canned table keyed on
// "dir:args". Keys in seq are consumed in order before the static
// responses are consulted, for commands whose output changes between
// calls. Unknown invocations fail.
type mockRunner struct {
	responses map[string]mockResponse
	seq       map[string][]mockResponse
	calls     []string
}

type mockResponse struct {
	out string
	err error
}

func (m *mockRunner) Run(_ context.Context, dir string, args ...string) (string, error) {
	key := dir + ":" + strings.Join(args, " ")
	m.calls = append(m.calls, key)
	if queue, ok := m.seq[key]; ok && len(queue) > 0 {
		resp := queue[0]
		m.seq[key] = queue[1:]
		return resp.out, resp.err
	}
	if resp, ok := m.responses[key]; ok {
		return resp.out, resp.err
	}
	return "", errors.New("unexpected call: " + key)
}

func (m *mockRunner) called(fragment string) bool {
	for _, call := range m.calls {
		if strings.Contains(call, fragment) {
			return true
		}
	}
	return false
}

type fakeForge struct {
	byNumber map[int]*forge.PullRequest
	byBranch map[string]*forge.PullRequest
	err      error
}

func (f *fakeForge) PRForBranch(_ context.Context, _, _, branch string) (*forge.PullRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byBranch[branch], nil
}

func (f *fakeForge) PRByNumber(_ context.Context, _, _ string, number int) (*forge.PullRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byNumber[number], nil
}

var testNow = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

var widget = model.Repository{Path: "/work/widget", Name: "widget", Owner: "acme", RemoteName: "widget"}

var _ = Describe("ProcessRepo", func() {
	It("stashes, updates the base, rebases, pushes, and restores", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                                        {out: "feature/login"},
				"/work/widget:status --porcelain=v1":                                                                    {out: " M main.go"},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                                {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature/login":                                       {},
				"/work/widget:stash push --include-untracked -m rebasekeeper auto-stash feature/login 20240102T030405":  {out: "Saved working directory"},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules":             {},
				"/work/widget:checkout main":                                                                            {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                                   {},
				"/work/widget:merge-base main feature/login":                                                            {out: "base0"},
				"/work/widget:rev-parse feature/login":                                                     {out: "eee999"},
				"/work/widget:merge-tree base0 feature/login main":                                                      {out: "merged cleanly"},
				"/work/widget:checkout feature/login":                                                                   {},
				"/work/widget:rebase main":                                                                              {},
				"/work/widget:push --force-with-lease origin feature/login":                                             {},
				"/work/widget:stash pop":                                                                                {out: "Dropped refs/stash@{0}"},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main": {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Push: true, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature/login"}})

		Expect(result.Err).To(BeEmpty())
		Expect(result.BaseAdvanced).To(BeTrue())
		Expect(result.Branches).To(HaveLen(1))
		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeRebased))
		Expect(result.OK()).To(BeTrue())
		Expect(runner.called("stash pop")).To(BeTrue())
	})

	It("skips the rebase when the simulation predicts conflicts", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature-x":                               {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:merge-base main feature-x":                                                    {out: "base0"},
				"/work/widget:rev-parse feature-x":                                                         {out: "eee999"},
				"/work/widget:merge-tree base0 feature-x main": {out: strings.Join([]string{
					"changed in both",
					"  base   100644 1111111 main.go",
					"+<<<<<<< .our",
					"+local line",
					"+=======",
					"+remote line",
					"+>>>>>>> .their",
				}, "\n")},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main": {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeConflictDetected))
		Expect(runner.called(":rebase main")).To(BeFalse())
		Expect(runner.called("checkout feature-x")).To(BeFalse())
		Expect(result.OK()).To(BeFalse())
	})

	It("aborts and recovers when the rebase fails anyway", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature-x":                               {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:merge-base main feature-x":                                                    {out: "base0"},
				"/work/widget:rev-parse feature-x":                                                         {out: "eee999"},
				"/work/widget:merge-tree base0 feature-x main":                                              {out: "merged cleanly"},
				"/work/widget:checkout feature-x":                                                           {},
				"/work/widget:rebase main":                                                                  {out: "error: could not apply deadbee", err: errors.New("exit status 1")},
				"/work/widget:rebase --abort":                                                               {},
				"/work/widget:reset --hard":                                                                 {},
				"/work/widget:checkout main":                                                                {},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main": {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{AbortRetryDelay: time.Millisecond, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeRebaseFailed))
		Expect(result.Branches[0].ErrorClass).To(Equal("conflict"))
		Expect(runner.called("rebase --abort")).To(BeTrue())
		Expect(runner.called("reset --hard")).To(BeTrue())
		Expect(runner.called("checkout main")).To(BeTrue())
	})

	It("retries the abort once before giving up", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature-x":                               {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:merge-base main feature-x":                                                    {out: "base0"},
				"/work/widget:rev-parse feature-x":                                                         {out: "eee999"},
				"/work/widget:merge-tree base0 feature-x main":                                              {out: "merged cleanly"},
				"/work/widget:checkout feature-x":                                                           {},
				"/work/widget:rebase main":                                                                  {err: errors.New("exit status 1")},
				"/work/widget:reset --hard":                                                                 {},
				"/work/widget:checkout main":                                                                {},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main":   {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
				"/work/widget:rebase --abort":   {{err: errors.New("exit status 128")}, {}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{AbortRetryDelay: time.Millisecond, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeRebaseFailed))
		aborts := 0
		for _, call := range runner.calls {
			if strings.HasSuffix(call, "rebase --abort") {
				aborts++
			}
		}
		Expect(aborts).To(Equal(2))
	})

	It("skips branches when the base did not advance", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature-x":                               {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.BaseAdvanced).To(BeFalse())
		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeSkippedBaseUnchanged))
		Expect(runner.called("merge-base")).To(BeFalse())
	})

	It("reports up-to-date branches under force-rebase", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature-x":                               {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
				"/work/widget:merge-base main feature-x":                                                    {out: "aaa111"},
				"/work/widget:rev-parse feature-x":                                                         {out: "eee999"},
			},
		}
		eng := engine.New(runner, nil, engine.Options{ForceRebase: true, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeUpToDate))
		Expect(runner.called("merge-tree")).To(BeFalse())
	})

	It("downgrades a failed push to a warning outcome", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature-x":                               {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:merge-base main feature-x":                                                    {out: "base0"},
				"/work/widget:rev-parse feature-x":                                                         {out: "eee999"},
				"/work/widget:merge-tree base0 feature-x main":                                              {out: "merged cleanly"},
				"/work/widget:checkout feature-x":                                                           {},
				"/work/widget:rebase main":                                                                  {},
				"/work/widget:push --force-with-lease origin feature-x":                                     {out: "stale info", err: errors.New("exit status 1")},
				"/work/widget:checkout main":                                                                {},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main":                    {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
				"/work/widget:symbolic-ref --quiet --short HEAD": {{out: "main"}, {out: "feature-x"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Push: true, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeRebasedPushFailed))
		Expect(result.Branches[0].ErrorClass).To(Equal("push_rejected"))
		Expect(result.OK()).To(BeTrue())
	})

	It("reports missing branches without touching the tree", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
			},
		}
		eng := engine.New(runner, nil, engine.Options{ForceRebase: true, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"ghost"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeNotFound))
	})

	It("refuses to rebase a protected branch", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
			},
		}
		eng := engine.New(runner, nil, engine.Options{ForceRebase: true, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"master"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeRebaseFailed))
		Expect(result.Branches[0].Error).To(ContainSubstring("protected"))
	})

	It("fails the repository when the fast-forward pull is refused", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:checkout main":                                                                {},
				"/work/widget:checkout dev":                                                                 {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {out: "fatal: Not possible to fast-forward, aborting.", err: errors.New("exit status 128")},
			},
			seq: map[string][]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD": {{out: "dev"}, {out: "main"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Err).To(ContainSubstring("fast-forward"))
		Expect(result.ErrClass).To(Equal("diverged"))
		Expect(result.Branches).To(BeEmpty())
		Expect(runner.calls[len(runner.calls)-1]).To(HaveSuffix("checkout dev"))
	})

	It("fails the repository on a detached HEAD", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD": {err: errors.New("exit status 1")},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget})

		Expect(result.Err).To(ContainSubstring("detached HEAD"))
	})

	It("selects candidate branches automatically when none are given", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature/login":                           {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:for-each-ref refs/heads --format=%(refname:short)":                            {out: "main\nfeature/login"},
				"/work/widget:merge-base main feature/login":                                                {out: "base0"},
				"/work/widget:rev-parse feature/login":                                                     {out: "eee999"},
				"/work/widget:merge-tree base0 feature/login main":                                          {out: "merged cleanly"},
				"/work/widget:checkout feature/login":                                                       {},
				"/work/widget:rebase main":                                                                  {},
				"/work/widget:checkout main":                                                                {},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main":                    {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
				"/work/widget:symbolic-ref --quiet --short HEAD": {{out: "main"}, {out: "feature/login"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget})

		Expect(result.Branches).To(HaveLen(1))
		Expect(result.Branches[0].Branch).To(Equal("feature/login"))
		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeRebased))
	})

	It("pops the stash even when the update fails", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:status --porcelain=v1":                                                        {out: " M main.go"},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:stash push --include-untracked -m rebasekeeper auto-stash dev 20240102T030405": {out: "Saved working directory"},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:checkout main":                                                                {},
				"/work/widget:checkout dev":                                                                 {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {err: errors.New("exit status 1")},
				"/work/widget:stash pop":                                                                    {out: "Dropped refs/stash@{0}"},
			},
			seq: map[string][]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD": {{out: "dev"}, {out: "main"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"feature-x"}})

		Expect(result.Err).NotTo(BeEmpty())
		Expect(runner.called("checkout dev")).To(BeTrue())
		Expect(runner.calls[len(runner.calls)-1]).To(HaveSuffix("stash pop"))
	})

	It("leaves a branch with no unique commits untouched", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/dev":                                     {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:rev-parse dev":                                                                {out: "base0"},
				"/work/widget:merge-base main dev":                                                          {out: "base0"},
			},
			seq: map[string][]mockResponse{
				"/work/widget:rev-parse main": {{out: "aaa111"}, {out: "bbb222"}, {out: "bbb222"}},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Push: true, Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"dev"}})

		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeUpToDate))
		Expect(runner.called("checkout dev")).To(BeFalse())
		Expect(runner.called(":rebase main")).To(BeFalse())
		Expect(runner.called("push")).To(BeFalse())
	})

	It("unions seeded branches with discovered candidates", func() {
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/widget:status --porcelain=v1":                                                        {},
				"/work/widget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/widget:show-ref --verify --quiet refs/heads/dev":                                     {},
				"/work/widget:show-ref --verify --quiet refs/heads/feature/login":                           {},
				"/work/widget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/widget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/widget:rev-parse main":                                                               {out: "aaa111"},
				"/work/widget:for-each-ref refs/heads --format=%(refname:short)":                            {out: "main\nfeature/login\ndev"},
				"/work/widget:rev-list --count main..dev":                                                   {out: "1"},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		result := eng.ProcessRepo(context.Background(), engine.Task{Repo: widget, Branches: []string{"dev"}, Discover: true})

		Expect(result.Branches).To(HaveLen(2))
		Expect(result.Branches[0].Branch).To(Equal("dev"))
		Expect(result.Branches[1].Branch).To(Equal("feature/login"))
		Expect(result.Branches[0].Outcome).To(Equal(model.OutcomeSkippedBaseUnchanged))
	})
})

var _ = Describe("Run", func() {
	It("stops between repositories when the context is canceled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		eng := engine.New(&mockRunner{}, nil, engine.Options{Now: testNow})

		summary := eng.Run(ctx, []engine.Task{{Repo: widget}})

		Expect(summary.Repos).To(BeEmpty())
	})

	It("aggregates results across repositories", func() {
		gadget := model.Repository{Path: "/work/gadget", Name: "gadget"}
		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:symbolic-ref --quiet --short HEAD": {err: errors.New("exit status 1")},
				"/work/gadget:symbolic-ref --quiet --short HEAD":                                            {out: "main"},
				"/work/gadget:status --porcelain=v1":                                                        {},
				"/work/gadget:show-ref --verify --quiet refs/heads/main":                                    {},
				"/work/gadget:-c fetch.recurseSubmodules=false fetch --all --prune --no-recurse-submodules": {},
				"/work/gadget:pull --ff-only --no-recurse-submodules":                                       {},
				"/work/gadget:rev-parse main":                                                               {out: "aaa111"},
				"/work/gadget:for-each-ref refs/heads --format=%(refname:short)":                            {out: "main"},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		summary := eng.Run(context.Background(), []engine.Task{{Repo: widget}, {Repo: gadget}})

		Expect(summary.Repos).To(HaveLen(2))
		Expect(summary.Succeeded()).To(Equal(1))
		Expect(summary.Failed()).To(Equal(1))
		Expect(summary.FailedRepos()).To(HaveLen(1))
		Expect(summary.FailedRepos()[0].Repo.Name).To(Equal("widget"))
	})
})

var _ = Describe("SeedBranches", func() {
	It("selects ledger entries belonging to the repository", func() {
		led := &ledger.Ledger{}
		Expect(led.Upsert("feature/api", "widget", "", ledger.StatusOpen)).To(Succeed())
		Expect(led.Upsert("feature/other", "gadget", "", ledger.StatusOpen)).To(Succeed())
		Expect(led.Upsert("feature/done", "widget", "", ledger.StatusMerged)).To(Succeed())
		Expect(led.Upsert("shared-1", "", "", ledger.StatusUnknown)).To(Succeed())
		Expect(led.Upsert("gone-2", "", "", ledger.StatusUnknown)).To(Succeed())

		runner := &mockRunner{
			responses: map[string]mockResponse{
				"/work/widget:show-ref --verify --quiet refs/heads/shared-1": {},
				"/work/widget:show-ref --verify --quiet refs/heads/gone-2":   {err: errors.New("exit status 1")},
			},
		}
		eng := engine.New(runner, nil, engine.Options{Now: testNow})

		seeds := eng.SeedBranches(context.Background(), led, widget)

		Expect(seeds).To(Equal([]string{"feature/api", "shared-1"}))
	})
})
