package encounters_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chartline-org/chartline/encounters"
)

var _ = Describe("EncounterLocker", func() {
	var locker encounters.EncounterLocker

	BeforeEach(func() {
		locker = encounters.NewEncounterLocker()
	})

	Describe("TryAcquire", func() {
		It("rejects a second acquisition of the same encounter", func() {
			release, err := locker.TryAcquire("enc-1")
			Expect(err).ToNot(HaveOccurred())
			defer release()

			_, err = locker.TryAcquire("enc-1")
			Expect(err).To(MatchError(encounters.ErrEncounterBusy))
		})

		It("allows concurrent acquisition of different encounters", func() {
			releaseFirst, err := locker.TryAcquire("enc-1")
			Expect(err).ToNot(HaveOccurred())
			defer releaseFirst()

			releaseSecond, err := locker.TryAcquire("enc-2")
			Expect(err).ToNot(HaveOccurred())
			defer releaseSecond()
		})

		It("allows reacquisition after release", func() {
			release, err := locker.TryAcquire("enc-1")
			Expect(err).ToNot(HaveOccurred())
			release()

			release, err = locker.TryAcquire("enc-1")
			Expect(err).ToNot(HaveOccurred())
			release()
		})
	})

	Describe("Acquire", func() {
		It("waits for the holder to release", func() {
			release, err := locker.TryAcquire("enc-1")
			Expect(err).ToNot(HaveOccurred())

			acquired := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				blockedRelease, err := locker.Acquire(context.Background(), "enc-1")
				Expect(err).ToNot(HaveOccurred())
				blockedRelease()
				close(acquired)
			}()

			Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())
			release()
			Eventually(acquired).Should(BeClosed())
		})

		It("gives up when the context is cancelled", func() {
			release, err := locker.TryAcquire("enc-1")
			Expect(err).ToNot(HaveOccurred())
			defer release()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err = locker.Acquire(ctx, "enc-1")
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
