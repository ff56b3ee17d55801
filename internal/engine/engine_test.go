package engine_test

import (
	"context"
	"database/sql"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"archplan/internal/cache"
	"archplan/internal/catalog"
	"archplan/internal/compose"
	"archplan/internal/config"
	"archplan/internal/db"
	"archplan/internal/domain"
	"archplan/internal/engine"
	"archplan/internal/events"
	"archplan/internal/migrate"
	"archplan/internal/repo"
)

func openDB() *sql.DB {
	conn, err := db.Open(db.Config{Workspace: GinkgoT().TempDir()})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(conn.Close)
	Expect(migrate.Migrate(context.Background(), conn)).To(Succeed())
	return conn
}

func newEngine(conn *sql.DB, opts engine.Options) engine.Engine {
	eng, err := engine.New(conn, config.Default(), opts)
	Expect(err).NotTo(HaveOccurred())
	clock := func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	eng.Now = clock
	eng.Compositor.Now = clock
	return eng
}

func briefing(fields map[string]any) domain.Briefing {
	return domain.Briefing{ID: "brief-1", Type: "residential", Version: 1, Fields: fields}
}

func boolPtr(v bool) *bool { return &v }

var _ = Describe("Engine", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("with a workspace database", func() {
		var (
			conn *sql.DB
			eng  engine.Engine
		)

		BeforeEach(func() {
			conn = openDB()
			eng = newEngine(conn, engine.Options{})
			Expect(eng.SeedCatalog(ctx, catalog.Builtin())).To(Succeed())
		})

		It("plans a residential project from the seeded catalog", func() {
			res, err := eng.Plan(ctx, "", briefing(nil), domain.ComposeOptions{StartDate: "2024-01-01"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Analysis.Complexity).To(Equal(domain.ComplexityMedium))
			Expect(res.Project.ProjectID).To(Equal("brief-1"))
			Expect(res.Project.TemplateIDs).To(Equal([]string{"tpl-architecture-residential", "tpl-structural", "tpl-utilities"}))
			Expect(res.Project.Activities).To(HaveLen(13))
			Expect(res.Project.Budget.Total).To(Equal(29000.0))
		})

		It("records an event for every successful stage", func() {
			_, err := eng.Plan(ctx, "proj-1", briefing(nil), domain.ComposeOptions{})
			Expect(err).NotTo(HaveOccurred())

			composed, err := eng.ListEvents(ctx, repo.EventFilter{ProjectID: "proj-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(composed).To(HaveLen(1))
			Expect(composed[0].Type).To(Equal(events.TypeProjectComposed))
			Expect(composed[0].TS).To(Equal("2024-01-01T09:00:00Z"))

			analysed, err := eng.ListEvents(ctx, repo.EventFilter{Type: events.TypeBriefingAnalyzed})
			Expect(err).NotTo(HaveOccurred())
			Expect(analysed).To(HaveLen(1))
			Expect(analysed[0].ProjectID).To(Equal("brief-1"))
			Expect(analysed[0].Payload).To(ContainSubstring(`"complexity":"medium"`))
		})

		It("returns the events past a cursor oldest first", func() {
			cursor, err := eng.LatestEventID(ctx)
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.Plan(ctx, "proj-tail", briefing(nil), domain.ComposeOptions{})
			Expect(err).NotTo(HaveOccurred())

			tail, err := eng.EventsAfter(ctx, cursor, repo.EventFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(tail).To(HaveLen(2))
			Expect(tail[0].Type).To(Equal(events.TypeBriefingAnalyzed))
			Expect(tail[1].Type).To(Equal(events.TypeProjectComposed))
			Expect(eng.LatestEventID(ctx)).To(Equal(tail[1].ID))
			Expect(eng.EventsAfter(ctx, tail[1].ID, repo.EventFilter{})).To(BeEmpty())
		})

		It("aborts on a cyclic template without recording a composition", func() {
			Expect(eng.SeedCatalog(ctx, []domain.Template{{
				ID: "tpl-loop", Category: "architecture",
				Activities: []domain.ActivityTemplate{
					{ID: "a", Title: "A", Dependencies: []string{"b"}},
					{ID: "b", Title: "B", Dependencies: []string{"a"}},
				},
			}})).To(Succeed())
			a := domain.NeedsAnalysis{Primary: []domain.TemplateRecommendation{{TemplateID: "tpl-loop", Category: "architecture", Priority: 1, Score: 1}}}

			_, err := eng.Compose(ctx, "proj-loop", a, domain.ComposeOptions{})
			Expect(err).To(MatchError(compose.ErrCycle))
			Expect(eng.ListEvents(ctx, repo.EventFilter{Type: events.TypeProjectComposed})).To(BeEmpty())
		})

		It("lists the stored templates", func() {
			templates, err := eng.Templates(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(templates).To(HaveLen(len(catalog.Builtin())))
			acts, err := eng.TemplateActivities(ctx, "tpl-utilities")
			Expect(err).NotTo(HaveOccurred())
			Expect(acts).To(HaveLen(4))
			Expect(acts[0].Category).To(Equal("utilities"))
		})

		It("shares compositions across engines through the sqlite cache", func() {
			store := cache.NewSQL(repo.Repo{DB: conn})
			first := newEngine(conn, engine.Options{Store: store})
			p1, err := first.Compose(ctx, "proj-1", mustAnalyze(ctx, first), domain.ComposeOptions{})
			Expect(err).NotTo(HaveOccurred())

			second := newEngine(conn, engine.Options{Store: cache.NewSQL(repo.Repo{DB: conn})})
			second.Compositor.Now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
			p2, err := second.Compose(ctx, "proj-1", mustAnalyze(ctx, second), domain.ComposeOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p2.ID).To(Equal(p1.ID))
			Expect(p2.CreatedAt).To(Equal(p1.CreatedAt))
		})
	})

	Describe("FilterAnalysis", func() {
		var (
			eng      engine.Engine
			analysis domain.NeedsAnalysis
		)

		BeforeEach(func() {
			eng = newEngine(nil, engine.Options{})
			var err error
			analysis, err = eng.Analyze(ctx, briefing(map[string]any{"notes": "garden and bespoke furniture"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(analysis.Optional).To(HaveLen(2))
		})

		It("keeps the analysis untouched without options", func() {
			Expect(eng.FilterAnalysis(analysis, domain.ComposeOptions{})).To(Equal(analysis))
		})

		It("drops the optional tier and recomputes aggregates", func() {
			filtered := eng.FilterAnalysis(analysis, domain.ComposeOptions{IncludeOptional: boolPtr(false)})
			Expect(filtered.Optional).To(BeEmpty())
			Expect(filtered.Primary).To(Equal(analysis.Primary))
			Expect(filtered.Complementary).To(Equal(analysis.Complementary))
			Expect(filtered.OverallScore).To(Equal(1.0))
			Expect(filtered.Complexity).To(Equal(domain.ComplexityMedium))
		})

		It("applies min score to optional recommendations only", func() {
			filtered := eng.FilterAnalysis(analysis, domain.ComposeOptions{MinScore: 0.75})
			Expect(filtered.TemplateIDs(domain.TierOptional)).To(Equal([]string{"tpl-landscaping"}))
			Expect(filtered.Primary).To(HaveLen(1))
		})

		It("applies min priority to optional recommendations only", func() {
			filtered := eng.FilterAnalysis(analysis, domain.ComposeOptions{MinPriority: 4})
			Expect(filtered.TemplateIDs(domain.TierOptional)).To(Equal([]string{"tpl-landscaping"}))
			Expect(filtered.Complementary).To(HaveLen(2))
		})

		It("composes only the surviving templates", func() {
			p, err := eng.Compose(ctx, "proj-1", analysis, domain.ComposeOptions{IncludeOptional: boolPtr(false)})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.TemplateIDs).NotTo(ContainElement("tpl-landscaping"))
			Expect(p.Metadata.Analysis.Optional).To(BeEmpty())
		})
	})

	Describe("without a database", func() {
		It("uses the built-in catalog and records nothing", func() {
			eng := newEngine(nil, engine.Options{})
			res, err := eng.Plan(ctx, "proj-1", briefing(nil), domain.ComposeOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Project.Activities).NotTo(BeEmpty())
			Expect(eng.ListEvents(ctx, repo.EventFilter{})).To(BeEmpty())
			Expect(eng.EventsAfter(ctx, 0, repo.EventFilter{})).To(BeEmpty())
			Expect(eng.LatestEventID(ctx)).To(BeZero())
			Expect(eng.SeedCatalog(ctx, catalog.Builtin())).NotTo(Succeed())
		})

		DescribeTable("rejects invalid compose input",
			func(projectID string, opts domain.ComposeOptions) {
				eng := newEngine(nil, engine.Options{})
				_, err := eng.Compose(ctx, projectID, domain.NeedsAnalysis{}, opts)
				Expect(err).To(MatchError(engine.ErrInvalidInput))
			},
			Entry("missing project id", "", domain.ComposeOptions{}),
			Entry("score above one", "p", domain.ComposeOptions{MinScore: 1.5}),
			Entry("negative priority", "p", domain.ComposeOptions{MinPriority: -1}),
			Entry("unknown composition type", "p", domain.ComposeOptions{CompositionType: "hybrid"}),
			Entry("malformed start date", "p", domain.ComposeOptions{StartDate: "01/02/2024"}),
		)
	})
})

func mustAnalyze(ctx context.Context, eng engine.Engine) domain.NeedsAnalysis {
	a, err := eng.Analyze(ctx, briefing(nil))
	Expect(err).NotTo(HaveOccurred())
	return a
}

var _ = Describe("Template lookup", func() {
	It("reports unknown templates as not found", func() {
		eng := newEngine(nil, engine.Options{})
		_, err := eng.Template(context.Background(), "tpl-ghost")
		Expect(err).To(MatchError(repo.ErrNotFound))
		t, err := eng.Template(context.Background(), "tpl-structural")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Activities).To(HaveLen(3))
	})
})
