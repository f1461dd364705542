package problems_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/chartline-org/chartline/config"
	"github.com/chartline-org/chartline/extractor"
	"github.com/chartline-org/chartline/problems"
	problemsTest "github.com/chartline-org/chartline/problems/test"
)

var _ = Describe("Problem Reconciler", func() {
	var repo *problemsTest.FakeRepository
	var encounters *problemsTest.FakeEncounterChecker
	var ledger problems.Ledger
	var reconciler problems.Reconciler
	var patientId primitive.ObjectID
	var encounterId primitive.ObjectID

	newParams := func(mentions ...extractor.MentionCandidate) problems.ReconcileParams {
		return problems.ReconcileParams{
			PatientId:   patientId,
			EncounterId: encounterId,
			ProviderId:  "provider-1",
			NoteDate:    time.Now(),
			Mentions:    mentions,
		}
	}

	BeforeEach(func() {
		repo = problemsTest.NewFakeRepository()
		encounters = problemsTest.NewFakeEncounterChecker()
		patientId = primitive.NewObjectID()
		encounterId = primitive.NewObjectID()

		var err error
		ledger, err = problems.NewLedger(repo, encounters, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())

		cfg := &config.Config{
			MentionConfidenceThreshold: 0.6,
			TitleSimilarityThreshold:   0.72,
		}
		reconciler, err = problems.NewReconciler(repo, ledger, cfg, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())
	})

	seedProblem := func(title, code string, status problems.Status) *problems.MedicalProblem {
		problem := problemsTest.RandomProblem(patientId)
		problem.ProblemTitle = title
		problem.CurrentIcd10Code = code
		problem.ProblemStatus = status
		return repo.Seed(problem)
	}

	Describe("New problems", func() {
		It("creates a problem with a seeded visit entry and creation change log", func() {
			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:           "Hypertension",
				SuggestedCode:   "I10",
				SuggestedStatus: "active",
				Confidence:      0.9,
				SupportingText:  "BP 152/94 today",
			}))

			Expect(result.Errors).To(BeEmpty())
			Expect(result.Created).To(Equal(1))
			Expect(result.AffectedProblemIds).To(HaveLen(1))

			problemId := result.AffectedProblemIds[0]
			created, err := repo.Get(context.Background(), problemId)
			Expect(err).ToNot(HaveOccurred())
			Expect(created.ProblemTitle).To(Equal("Hypertension"))
			Expect(created.CurrentIcd10Code).To(Equal("I10"))
			Expect(created.FirstEncounterId).To(Equal(encounterId))

			history, err := ledger.GetVisitHistory(context.Background(), problemId)
			Expect(err).ToNot(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(history[0].Signed).To(BeFalse())
			Expect(history[0].NoteExcerpt).To(Equal("BP 152/94 today"))

			changeLog, err := repo.ChangeLog(context.Background(), problemId)
			Expect(err).ToNot(HaveOccurred())
			Expect(changeLog).To(HaveLen(1))
			Expect(changeLog[0].Field).To(Equal("created"))
		})

		It("defaults an invalid suggested status to active", func() {
			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:      "Migraine",
				Confidence: 0.8,
			}))

			Expect(result.Created).To(Equal(1))
			created, err := repo.Get(context.Background(), result.AffectedProblemIds[0])
			Expect(err).ToNot(HaveOccurred())
			Expect(created.ProblemStatus).To(Equal(problems.StatusActive))
		})
	})

	Describe("Matching", func() {
		It("resolves an abbreviated mention to the existing problem", func() {
			existing := seedProblem("Hypertension", "I10", problems.StatusActive)

			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:         "HTN",
				SuggestedCode: "I10",
				Confidence:    0.85,
			}))

			Expect(result.Created).To(Equal(0))
			Expect(result.Updated + result.Mentioned).To(Equal(1))
			Expect(result.AffectedProblemIds).To(ConsistOf(existing.Id.Hex()))
		})

		It("resolves by diagnosis code family when titles diverge", func() {
			existing := seedProblem("Type 2 diabetes mellitus", "E11.9", problems.StatusChronic)

			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:         "Diabetes with neuropathy",
				SuggestedCode: "E11",
				Confidence:    0.8,
			}))

			Expect(result.Created).To(Equal(0))
			Expect(result.AffectedProblemIds).To(ConsistOf(existing.Id.Hex()))
		})

		It("does not match when a laterality hint conflicts", func() {
			existing := problemsTest.RandomProblem(patientId)
			existing.ProblemTitle = "Knee osteoarthritis"
			existing.CurrentIcd10Code = "M17.11"
			existing.Laterality = "right"
			repo.Seed(existing)

			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:         "Knee osteoarthritis",
				SuggestedCode: "M17.12",
				Laterality:    "left",
				Confidence:    0.8,
			}))

			Expect(result.Created).To(Equal(1))
		})

		It("prefers the most recently updated problem on ties", func() {
			older := problemsTest.RandomProblem(patientId)
			older.ProblemTitle = "Chronic kidney disease"
			older.CurrentIcd10Code = "N18.3"
			older.UpdatedAt = time.Now().AddDate(0, -6, 0)
			repo.Seed(older)

			newer := problemsTest.RandomProblem(patientId)
			newer.ProblemTitle = "Chronic kidney disease"
			newer.CurrentIcd10Code = "N18.3"
			newer.UpdatedAt = time.Now().AddDate(0, 0, -1)
			seeded := repo.Seed(newer)

			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:      "CKD",
				Confidence: 0.8,
			}))

			Expect(result.AffectedProblemIds).To(ConsistOf(seeded.Id.Hex()))
		})
	})

	Describe("Status updates", func() {
		It("updates canonical fields and writes an old to new change log", func() {
			existing := seedProblem("Hypertension", "I10", problems.StatusActive)

			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:           "Hypertension",
				SuggestedCode:   "I10",
				SuggestedStatus: "worsening",
				Confidence:      0.9,
				Reasoning:       "BP trending up despite medication",
			}))

			Expect(result.Updated).To(Equal(1))

			updated, err := repo.Get(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(updated.ProblemStatus).To(Equal(problems.StatusWorsening))

			changeLog, err := repo.ChangeLog(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(changeLog).To(HaveLen(1))
			Expect(changeLog[0].Field).To(Equal("problemStatus"))
			Expect(changeLog[0].OldValue).To(Equal("active"))
			Expect(changeLog[0].NewValue).To(Equal("worsening"))
			Expect(changeLog[0].Reasoning).To(Equal("BP trending up despite medication"))

			history, err := ledger.GetVisitHistory(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(history[0].StatusAtVisit).To(Equal(problems.StatusWorsening))
		})

		It("records a visit mention without touching canonical fields", func() {
			existing := seedProblem("Hypertension", "I10", problems.StatusActive)

			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:           "Hypertension",
				SuggestedCode:   "I10",
				SuggestedStatus: "active",
				Confidence:      0.9,
			}))

			Expect(result.Mentioned).To(Equal(1))
			Expect(result.Updated).To(Equal(0))

			unchanged, err := repo.Get(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(unchanged.ProblemStatus).To(Equal(problems.StatusActive))

			changeLog, err := repo.ChangeLog(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(changeLog).To(BeEmpty())
		})
	})

	Describe("Same-call double resolution", func() {
		It("appends a visit entry for both mentions and the later wins canonically", func() {
			existing := seedProblem("Hypertension", "I10", problems.StatusActive)

			result := reconciler.Reconcile(context.Background(), newParams(
				extractor.MentionCandidate{
					Title:           "Hypertension",
					SuggestedStatus: "improved",
					Confidence:      0.9,
				},
				extractor.MentionCandidate{
					Title:           "HTN",
					SuggestedStatus: "worsening",
					Confidence:      0.9,
				},
			))

			Expect(result.Updated).To(Equal(2))

			final, err := repo.Get(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(final.ProblemStatus).To(Equal(problems.StatusWorsening))

			history, err := ledger.GetVisitHistory(context.Background(), existing.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(history).To(HaveLen(2))
		})
	})

	Describe("Confidence threshold", func() {
		It("discards low confidence mentions without applying them", func() {
			result := reconciler.Reconcile(context.Background(), newParams(extractor.MentionCandidate{
				Title:      "Possible lupus",
				Confidence: 0.3,
			}))

			Expect(result.Discarded).To(Equal(1))
			Expect(result.Created).To(Equal(0))
			Expect(result.AffectedProblemIds).To(BeEmpty())
		})
	})

	Describe("Partial failure", func() {
		It("continues past a failing mention and records exactly one error", func() {
			repo.CreateHook = func(problem *problems.MedicalProblem) error {
				if problem.ProblemTitle == "Asthma" {
					return errors.New("write failed")
				}
				return nil
			}

			result := reconciler.Reconcile(context.Background(), newParams(
				extractor.MentionCandidate{Title: "Hypertension", SuggestedCode: "I10", Confidence: 0.9},
				extractor.MentionCandidate{Title: "Asthma", SuggestedCode: "J45.909", Confidence: 0.9},
				extractor.MentionCandidate{Title: "Migraine", SuggestedCode: "G43.909", Confidence: 0.9},
			))

			Expect(result.Created).To(Equal(2))
			Expect(result.Errors).To(HaveLen(1))
			Expect(result.Errors[0].MentionTitle).To(Equal("Asthma"))
			Expect(result.AffectedProblemIds).To(HaveLen(2))
		})
	})
})
