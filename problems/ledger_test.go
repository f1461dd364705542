package problems_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/chartline-org/chartline/problems"
	problemsTest "github.com/chartline-org/chartline/problems/test"
)

var _ = Describe("Visit History Ledger", func() {
	var repo *problemsTest.FakeRepository
	var encounters *problemsTest.FakeEncounterChecker
	var ledger problems.Ledger
	var problem *problems.MedicalProblem
	var encounterId primitive.ObjectID

	BeforeEach(func() {
		repo = problemsTest.NewFakeRepository()
		encounters = problemsTest.NewFakeEncounterChecker()

		var err error
		ledger, err = problems.NewLedger(repo, encounters, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())

		problem = repo.Seed(problemsTest.RandomProblem(primitive.NewObjectID()))
		encounterId = primitive.NewObjectID()
	})

	newEntry := func(encounter primitive.ObjectID) problems.VisitEntry {
		return problems.VisitEntry{
			EncounterId:   encounter,
			Date:          time.Now(),
			StatusAtVisit: problems.StatusActive,
			NoteExcerpt:   "documented during visit",
			Source:        problems.VisitSourceDerived,
		}
	}

	Describe("AppendVisitEntry", func() {
		It("appends a draft entry for an unsigned encounter", func() {
			entry, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).ToNot(HaveOccurred())
			Expect(entry.Signed).To(BeFalse())
			Expect(entry.Seq).To(Equal(0))
		})

		It("assigns increasing sequence numbers", func() {
			first, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).ToNot(HaveOccurred())
			second, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Seq).To(Equal(first.Seq + 1))
		})

		It("rejects appends for a signed encounter", func() {
			encounters.SetSigned(encounterId.Hex(), true)

			_, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).To(MatchError(problems.ErrImmutableHistory))
		})

		It("allows a new encounter to append after another was signed", func() {
			encounters.SetSigned(encounterId.Hex(), true)
			newEncounterId := primitive.NewObjectID()

			_, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(newEncounterId))
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("FinalizeForEncounter", func() {
		BeforeEach(func() {
			_, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).ToNot(HaveOccurred())
			_, err = ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(primitive.NewObjectID()))
			Expect(err).ToNot(HaveOccurred())
		})

		It("signs every entry referencing the encounter and no others", func() {
			Expect(ledger.FinalizeForEncounter(context.Background(), encounterId.Hex())).To(Succeed())

			history, err := ledger.GetVisitHistory(context.Background(), problem.Id.Hex())
			Expect(err).ToNot(HaveOccurred())

			for _, entry := range history {
				if entry.EncounterId == encounterId {
					Expect(entry.Signed).To(BeTrue())
				} else {
					Expect(entry.Signed).To(BeFalse())
				}
			}
		})

		It("is idempotent", func() {
			Expect(ledger.FinalizeForEncounter(context.Background(), encounterId.Hex())).To(Succeed())

			before, err := ledger.GetVisitHistory(context.Background(), problem.Id.Hex())
			Expect(err).ToNot(HaveOccurred())

			Expect(ledger.FinalizeForEncounter(context.Background(), encounterId.Hex())).To(Succeed())

			after, err := ledger.GetVisitHistory(context.Background(), problem.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(HaveLen(len(before)))
			Expect(after).To(Equal(before))
		})
	})

	Describe("GetVisitHistory", func() {
		It("returns entries newest first", func() {
			first, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).ToNot(HaveOccurred())
			second, err := ledger.AppendVisitEntry(context.Background(), problem.Id.Hex(), newEntry(encounterId))
			Expect(err).ToNot(HaveOccurred())

			history, err := ledger.GetVisitHistory(context.Background(), problem.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0].Seq).To(Equal(second.Seq))
			Expect(history[1].Seq).To(Equal(first.Seq))
		})
	})
})
