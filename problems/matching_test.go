package problems_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chartline-org/chartline/problems"
)

var _ = Describe("Title Normalization", func() {
	It("lowercases and strips punctuation", func() {
		Expect(problems.NormalizeTitle("Type 2 Diabetes, Mellitus!")).To(Equal("type 2 diabetes mellitus"))
	})

	It("expands charting abbreviations", func() {
		Expect(problems.NormalizeTitle("HTN")).To(Equal("hypertension"))
		Expect(problems.NormalizeTitle("T2DM")).To(Equal("type 2 diabetes mellitus"))
		Expect(problems.NormalizeTitle("AFib")).To(Equal("atrial fibrillation"))
	})

	It("leaves unknown tokens untouched", func() {
		Expect(problems.NormalizeTitle("Migraine")).To(Equal("migraine"))
	})
})

var _ = Describe("Title Similarity", func() {
	It("is 1 for identical normalized titles", func() {
		Expect(problems.TitleSimilarity("hypertension", "hypertension")).To(BeNumerically("==", 1))
	})

	It("is high for near-identical titles", func() {
		Expect(problems.TitleSimilarity("hypertension", "hypertention")).To(BeNumerically(">", 0.85))
	})

	It("is low for unrelated titles", func() {
		Expect(problems.TitleSimilarity("hypertension", "fractured wrist")).To(BeNumerically("<", 0.4))
	})

	It("is 0 when either title is empty", func() {
		Expect(problems.TitleSimilarity("", "hypertension")).To(BeNumerically("==", 0))
	})
})

var _ = Describe("Code Matching", func() {
	It("matches equal codes", func() {
		Expect(problems.CodesMatch("I10", "I10")).To(BeTrue())
	})

	It("matches a category prefix", func() {
		Expect(problems.CodesMatch("E11", "E11.9")).To(BeTrue())
		Expect(problems.CodesMatch("E11.9", "E11")).To(BeTrue())
	})

	It("ignores case and whitespace", func() {
		Expect(problems.CodesMatch(" i10 ", "I10")).To(BeTrue())
	})

	It("rejects prefixes shorter than a category", func() {
		Expect(problems.CodesMatch("E1", "E11.9")).To(BeFalse())
	})

	It("rejects unrelated codes and empty values", func() {
		Expect(problems.CodesMatch("I10", "E11.9")).To(BeFalse())
		Expect(problems.CodesMatch("", "I10")).To(BeFalse())
	})
})
