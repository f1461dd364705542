package encounters_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chartline-org/chartline/encounters"
)

var _ = Describe("Encounter lifecycle", func() {
	Describe("CanTransition", func() {
		It("allows moving forward through the lifecycle", func() {
			Expect(encounters.CanTransition(encounters.StatusInProgress, encounters.StatusPendingReview)).To(BeTrue())
			Expect(encounters.CanTransition(encounters.StatusPendingReview, encounters.StatusCompleted)).To(BeTrue())
			Expect(encounters.CanTransition(encounters.StatusCompleted, encounters.StatusSigned)).To(BeTrue())
		})

		It("allows skipping intermediate states", func() {
			Expect(encounters.CanTransition(encounters.StatusInProgress, encounters.StatusSigned)).To(BeTrue())
		})

		It("rejects moving backwards", func() {
			Expect(encounters.CanTransition(encounters.StatusCompleted, encounters.StatusInProgress)).To(BeFalse())
			Expect(encounters.CanTransition(encounters.StatusPendingReview, encounters.StatusPendingReview)).To(BeFalse())
		})

		It("treats signed as terminal", func() {
			Expect(encounters.CanTransition(encounters.StatusSigned, encounters.StatusCompleted)).To(BeFalse())
			Expect(encounters.CanTransition(encounters.StatusSigned, encounters.StatusSigned)).To(BeFalse())
		})

		It("rejects unknown states", func() {
			Expect(encounters.CanTransition("archived", encounters.StatusSigned)).To(BeFalse())
		})
	})
})
