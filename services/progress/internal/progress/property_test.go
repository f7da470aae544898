package progress

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/example/learning-platform/services/progress/internal/content"
)

func TestStepIndexAlwaysStoredInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int32Range(1, 500).Draw(t, "total")
		f := buildFixture(total)
		user := uuid.New()
		ctx := context.Background()

		idx := rapid.Int32().Draw(t, "idx")
		res, err := f.svc.UpdateStep(ctx, user, StepUpdate{
			ModuleID:          f.module,
			LessonID:          f.lessons[0].ID.String(),
			CurrentStepIndex:  idx,
			TotalSteps:        total,
			TimeSpentDeltaSec: rapid.Int64Range(0, 100000).Draw(t, "delta"),
		})
		if err != nil {
			t.Fatalf("update step: %v", err)
		}
		if res.CurrentStepIndex < 0 || res.CurrentStepIndex > total-1 {
			t.Fatalf("index %d stored outside [0, %d] for input %d", res.CurrentStepIndex, total-1, idx)
		}

		detail, err := f.svc.GetLessonDetail(ctx, user, f.module, f.lessons[0].ID.String())
		if err != nil {
			t.Fatalf("detail: %v", err)
		}
		if detail.CurrentStepIndex < 0 || detail.CurrentStepIndex > total-1 {
			t.Fatalf("stored index %d outside [0, %d]", detail.CurrentStepIndex, total-1)
		}
	})
}

func TestRepeatedPositionWritesConverge(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int32Range(1, 100).Draw(t, "total")
		f := buildFixture(total)
		user := uuid.New()
		ctx := context.Background()

		in := StepUpdate{
			ModuleID:          f.module,
			LessonID:          f.lessons[0].ID.String(),
			CurrentStepIndex:  rapid.Int32().Draw(t, "idx"),
			TotalSteps:        total,
			TimeSpentDeltaSec: rapid.Int64Range(0, 1000).Draw(t, "delta"),
		}

		first, err := f.svc.UpdateStep(ctx, user, in)
		if err != nil {
			t.Fatalf("first write: %v", err)
		}
		second, err := f.svc.UpdateStep(ctx, user, in)
		if err != nil {
			t.Fatalf("second write: %v", err)
		}
		if first.CurrentStepIndex != second.CurrentStepIndex || first.TotalSteps != second.TotalSteps {
			t.Fatalf("repeating a write must converge: %+v vs %+v", first, second)
		}

		detail, err := f.svc.GetLessonDetail(ctx, user, f.module, f.lessons[0].ID.String())
		if err != nil {
			t.Fatalf("detail: %v", err)
		}
		if detail.TimeSpentSec != 2*in.TimeSpentDeltaSec {
			t.Fatalf("time accumulates per call: want %d, got %d", 2*in.TimeSpentDeltaSec, detail.TimeSpentSec)
		}
	})
}

func TestTimeSpentOnlyAccumulates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int32Range(1, 50).Draw(t, "total")
		f := buildFixture(total)
		user := uuid.New()
		ctx := context.Background()
		lesson := f.lessons[0].ID.String()

		var sum int64
		n := rapid.IntRange(1, 12).Draw(t, "ops")
		for i := 0; i < n; i++ {
			delta := rapid.Int64Range(0, 5000).Draw(t, "delta")
			var err error
			if rapid.Bool().Draw(t, "complete") {
				_, err = f.svc.CompleteLesson(ctx, user, CompleteLesson{
					ModuleID: f.module, LessonID: lesson,
					TotalSteps: total, TimeSpentDeltaSec: delta,
				})
			} else {
				_, err = f.svc.UpdateStep(ctx, user, StepUpdate{
					ModuleID: f.module, LessonID: lesson,
					CurrentStepIndex: rapid.Int32().Draw(t, "idx"),
					TotalSteps:       total, TimeSpentDeltaSec: delta,
				})
			}
			if err != nil {
				t.Fatalf("op %d: %v", i, err)
			}
			sum += delta

			detail, err := f.svc.GetLessonDetail(ctx, user, f.module, lesson)
			if err != nil {
				t.Fatalf("detail: %v", err)
			}
			if detail.TimeSpentSec != sum {
				t.Fatalf("lesson time drifted: want %d, got %d", sum, detail.TimeSpentSec)
			}
		}

		overview, err := f.svc.GetOverview(ctx, user)
		if err != nil {
			t.Fatalf("overview: %v", err)
		}
		if len(overview) != 1 || overview[0].TimeSpentSec != sum {
			t.Fatalf("module time must equal the sum of deltas %d, got %+v", sum, overview)
		}
	})
}

func TestCompletedLessonStaysCompleted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.Int32Range(1, 50).Draw(t, "total")
		f := buildFixture(total)
		user := uuid.New()
		ctx := context.Background()
		lesson := f.lessons[0].ID.String()

		if _, err := f.svc.CompleteLesson(ctx, user, CompleteLesson{
			ModuleID: f.module, LessonID: lesson, TotalSteps: total,
		}); err != nil {
			t.Fatalf("complete: %v", err)
		}

		n := rapid.IntRange(1, 10).Draw(t, "ops")
		for i := 0; i < n; i++ {
			res, err := f.svc.UpdateStep(ctx, user, StepUpdate{
				ModuleID: f.module, LessonID: lesson,
				CurrentStepIndex:  rapid.Int32().Draw(t, "idx"),
				TotalSteps:        rapid.Int32Range(1, 50).Draw(t, "newTotal"),
				TimeSpentDeltaSec: rapid.Int64Range(0, 100).Draw(t, "delta"),
			})
			if err != nil {
				t.Fatalf("update %d: %v", i, err)
			}
			if !res.Completed {
				t.Fatalf("step update %d flipped completed back to false", i)
			}
		}
	})
}

func TestModuleCompletesExactlyWhenAllLessonsComplete(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "lessons")
		counts := make([]int32, n)
		for i := range counts {
			counts[i] = rapid.Int32Range(1, 20).Draw(t, "steps")
		}
		f := buildFixture(counts...)
		user := uuid.New()
		ctx := context.Background()

		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		for i := n - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(t, "swap")
			order[i], order[j] = order[j], order[i]
		}

		for done, li := range order {
			l := f.lessons[li]
			if _, err := f.svc.CompleteLesson(ctx, user, CompleteLesson{
				ModuleID: f.module, LessonID: l.ID.String(), TotalSteps: l.StepCount,
			}); err != nil {
				t.Fatalf("complete lesson %d: %v", li, err)
			}

			st, err := f.svc.GetResumeState(ctx, user, f.module)
			if err != nil {
				t.Fatalf("resume: %v", err)
			}
			wantComplete := done == n-1
			if st.IsModuleComplete != wantComplete {
				t.Fatalf("after %d of %d completions IsModuleComplete=%v", done+1, n, st.IsModuleComplete)
			}
			if st.CompletedLessons != int32(done+1) {
				t.Fatalf("completed count: want %d, got %d", done+1, st.CompletedLessons)
			}
		}

		// Further writes never unset module completion.
		l := f.lessons[rapid.IntRange(0, n-1).Draw(t, "pick")]
		if _, err := f.svc.UpdateStep(ctx, user, StepUpdate{
			ModuleID: f.module, LessonID: l.ID.String(),
			CurrentStepIndex: 0, TotalSteps: l.StepCount,
		}); err != nil {
			t.Fatalf("post-completion update: %v", err)
		}
		st, err := f.svc.GetResumeState(ctx, user, f.module)
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		if !st.IsModuleComplete || st.ModuleProgress != 100 {
			t.Fatalf("module completion must be terminal, got %+v", st)
		}
	})
}

func TestResumeTargetAlwaysInActiveSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nActive := rapid.IntRange(1, 5).Draw(t, "active")
		nInactive := rapid.IntRange(0, 3).Draw(t, "inactive")

		counts := make([]int32, nActive)
		for i := range counts {
			counts[i] = rapid.Int32Range(1, 10).Draw(t, "steps")
		}
		f := buildFixture(counts...)
		ctx := context.Background()
		user := uuid.New()

		all := make([]uuid.UUID, 0, nActive+nInactive)
		activeSet := make(map[uuid.UUID]bool, nActive)
		for _, l := range f.lessons {
			all = append(all, l.ID)
			activeSet[l.ID] = true
		}
		for i := 0; i < nInactive; i++ {
			l := content.Lesson{ID: uuid.New(), ModuleID: f.module, Position: int32(nActive + i + 1), StepCount: 5}
			f.catalog.AddLesson(l, false)
			all = append(all, l.ID)
		}

		n := rapid.IntRange(0, 12).Draw(t, "ops")
		for i := 0; i < n; i++ {
			lessonID := all[rapid.IntRange(0, len(all)-1).Draw(t, "lesson")]
			total := rapid.Int32Range(1, 10).Draw(t, "total")
			var err error
			if rapid.Bool().Draw(t, "complete") {
				_, err = f.svc.CompleteLesson(ctx, user, CompleteLesson{
					ModuleID: f.module, LessonID: lessonID.String(), TotalSteps: total,
				})
			} else {
				_, err = f.svc.UpdateStep(ctx, user, StepUpdate{
					ModuleID: f.module, LessonID: lessonID.String(),
					CurrentStepIndex: rapid.Int32().Draw(t, "idx"), TotalSteps: total,
				})
			}
			if err != nil {
				t.Fatalf("op %d on %s: %v", i, lessonID, err)
			}
		}

		st, err := f.svc.GetResumeState(ctx, user, f.module)
		if err != nil {
			t.Fatalf("resume: %v", err)
		}
		if !activeSet[st.CurrentLessonID] {
			t.Fatalf("resume target %s is not an active lesson", st.CurrentLessonID)
		}

		// A position-only write on the target invalidates the cache but must
		// not move the target: recomputing resumes the same lesson.
		steps := st.TotalStepsInLesson
		if steps < 1 {
			steps = 1
		}
		if _, err := f.svc.UpdateStep(ctx, user, StepUpdate{
			ModuleID: f.module, LessonID: st.CurrentLessonID.String(),
			CurrentStepIndex: st.CurrentStepIndex, TotalSteps: steps,
		}); err != nil {
			t.Fatalf("target write: %v", err)
		}
		again, err := f.svc.GetResumeState(ctx, user, f.module)
		if err != nil {
			t.Fatalf("resume again: %v", err)
		}
		if again.CurrentLessonID != st.CurrentLessonID {
			t.Fatalf("resume is not deterministic: %s vs %s", st.CurrentLessonID, again.CurrentLessonID)
		}
	})
}
