package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/chartline-org/chartline/api"
	"github.com/chartline-org/chartline/config"
	"github.com/chartline-org/chartline/delta"
	"github.com/chartline-org/chartline/encounters"
	encountersTest "github.com/chartline-org/chartline/encounters/test"
	"github.com/chartline-org/chartline/extractor"
	extractorTest "github.com/chartline-org/chartline/extractor/test"
	ordersTest "github.com/chartline-org/chartline/orders/test"
	"github.com/chartline-org/chartline/patients"
	patientsTest "github.com/chartline-org/chartline/patients/test"
	"github.com/chartline-org/chartline/problems"
	problemsTest "github.com/chartline-org/chartline/problems/test"

	auditTest "github.com/chartline-org/chartline/audit/test"
)

var _ = Describe("Handler", func() {
	var ctrl *gomock.Controller
	var mockExtractor *extractorTest.MockExtractor
	var encounterRepo *encountersTest.FakeRepository
	var locker encounters.EncounterLocker
	var server *httptest.Server

	var patient *patients.Patient
	var encounter *encounters.Encounter

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		mockExtractor = extractorTest.NewMockExtractor(ctrl)
		patientRepo := patientsTest.NewFakeRepository()
		problemRepo := problemsTest.NewFakeRepository()
		orderRepo := ordersTest.NewFakeRepository()
		encounterRepo = encountersTest.NewFakeRepository()
		auditRepo := auditTest.NewFakeRepository()
		locker = encounters.NewEncounterLocker()

		encounterService, err := encounters.NewService(encounterRepo)
		Expect(err).ToNot(HaveOccurred())

		ledger, err := problems.NewLedger(problemRepo, encounterService, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())

		cfg := &config.Config{
			MentionConfidenceThreshold: 0.6,
			TitleSimilarityThreshold:   0.72,
		}
		reconciler, err := problems.NewReconciler(problemRepo, ledger, cfg, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())

		contexts, err := patients.NewContextLoader(patientRepo, problemRepo)
		Expect(err).ToNot(HaveOccurred())

		deltaService, err := delta.NewService(delta.ServiceParams{
			Extractor:  mockExtractor,
			Contexts:   contexts,
			Reconciler: reconciler,
			Orders:     orderRepo,
			Encounters: encounterService,
			Locker:     locker,
			Logger:     zap.NewNop().Sugar(),
		})
		Expect(err).ToNot(HaveOccurred())

		coordinator, err := encounters.NewCoordinator(encounters.CoordinatorParams{
			Repo:   encounterRepo,
			Ledger: ledger,
			Orders: orderRepo,
			Audit:  auditRepo,
			Locker: locker,
			Logger: zap.NewNop().Sugar(),
		})
		Expect(err).ToNot(HaveOccurred())

		handler, err := api.NewHandler(api.HandlerParams{
			Delta:    deltaService,
			Signing:  coordinator,
			Ledger:   ledger,
			Problems: problemRepo,
		})
		Expect(err).ToNot(HaveOccurred())

		e, err := api.NewServer(handler, api.NewHealthCheck(), zap.NewNop())
		Expect(err).ToNot(HaveOccurred())
		server = httptest.NewServer(e)

		patient, err = patientRepo.Create(context.Background(), patientsTest.RandomPatient())
		Expect(err).ToNot(HaveOccurred())

		encounter, err = encounterRepo.Create(context.Background(), encountersTest.SignableEncounter(*patient.Id))
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	post := func(path, body string) *http.Response {
		res, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
		Expect(err).ToNot(HaveOccurred())
		return res
	}

	Describe("POST delta", func() {
		path := func() string {
			return "/v1/patients/" + patient.Id.Hex() + "/encounters/" + encounter.Id.Hex() + "/delta"
		}

		It("returns a summary", func() {
			mockExtractor.EXPECT().
				Extract(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(&extractor.Result{
					Mentions: []extractor.MentionCandidate{
						{Title: "Hypertension", SuggestedCode: "I10", SuggestedStatus: "active", Confidence: 0.9},
					},
				}, nil).
				Times(2)

			res := post(path(), `{"text":"HTN stable, continue lisinopril.","providerId":"dr-1"}`)
			Expect(res.StatusCode).To(Equal(http.StatusOK))

			summary := delta.Summary{}
			Expect(json.NewDecoder(res.Body).Decode(&summary)).To(Succeed())
			Expect(summary.Created).To(Equal(1))
		})

		It("maps validation failures to bad request", func() {
			res := post(path(), `{"text":"  "}`)
			Expect(res.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("maps a busy encounter to conflict", func() {
			release, err := locker.TryAcquire(encounter.Id.Hex())
			Expect(err).ToNot(HaveOccurred())
			defer release()

			res := post(path(), `{"text":"HTN stable.","providerId":"dr-1"}`)
			Expect(res.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("POST sign", func() {
		path := func() string {
			return "/v1/encounters/" + encounter.Id.Hex() + "/sign"
		}

		It("signs a complete encounter", func() {
			res := post(path(), `{"providerId":"dr-1"}`)
			Expect(res.StatusCode).To(Equal(http.StatusOK))

			response := api.SignEncounterResponse{}
			Expect(json.NewDecoder(res.Body).Decode(&response)).To(Succeed())
			Expect(response.CanSign).To(BeTrue())
			Expect(response.SignedAt).ToNot(BeNil())
		})

		It("reports failed requirements as unprocessable", func() {
			unsignable, err := encounterRepo.Create(context.Background(), encountersTest.RandomEncounter(*patient.Id))
			Expect(err).ToNot(HaveOccurred())

			res := post("/v1/encounters/"+unsignable.Id.Hex()+"/sign", `{"providerId":"dr-1"}`)
			Expect(res.StatusCode).To(Equal(http.StatusUnprocessableEntity))

			response := api.SignEncounterResponse{}
			Expect(json.NewDecoder(res.Body).Decode(&response)).To(Succeed())
			Expect(response.CanSign).To(BeFalse())
			Expect(response.Errors).ToNot(BeEmpty())
		})
	})

	Describe("GET problem history", func() {
		It("returns the visit entries", func() {
			res, err := http.Get(server.URL + "/v1/patients/" + patient.Id.Hex() + "/problems")
			Expect(err).ToNot(HaveOccurred())
			Expect(res.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST merge orders", func() {
		It("merges without duplicates", func() {
			body := `{
				"fast": [{"orderType":"medication","payload":{"name":"Lisinopril"}}],
				"thorough": [
					{"orderType":"medication","payload":{"name":"lisinopril"}},
					{"orderType":"lab","payload":{"testName":"CBC"}}
				]
			}`
			res := post("/v1/orders/merge", body)
			Expect(res.StatusCode).To(Equal(http.StatusOK))

			merged := struct {
				Orders       []map[string]interface{} `json:"Orders"`
				FromFast     int                      `json:"FromFast"`
				FromThorough int                      `json:"FromThorough"`
			}{}
			Expect(json.NewDecoder(res.Body).Decode(&merged)).To(Succeed())
			Expect(merged.Orders).To(HaveLen(2))
			Expect(merged.FromFast).To(Equal(1))
			Expect(merged.FromThorough).To(Equal(1))
		})
	})
})
