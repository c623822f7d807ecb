package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote/fakeserver"
	"github.com/fieldsync/fieldsync/internal/status"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/test-integration/sync-engine/helpers"
)

const (
	readyTimeout = 15 * time.Second
	syncTimeout  = 15 * time.Second
)

var _ = Describe("Sync Engine Integration", Label("sync"), func() {
	var (
		tempDir      string
		engineHelper *helpers.EngineTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("fieldsync-test-")
		engineHelper = helpers.NewEngineTestHelper(ctx, tempDir,
			fakeserver.WithValidator(fakeserver.RequiredFields("full_name")))
	})

	AfterEach(func() {
		Expect(engineHelper.StopEngine()).To(Succeed())
		cleanupTempDir(tempDir)
	})

	Context("with local and remote changes", func() {
		BeforeEach(func() {
			engineHelper.Server.Seed("patients",
				helpers.PatientPayload("Achieng Otieno"),
				helpers.PatientPayload("Baraka Mwangi"),
				helpers.PatientPayload("Chebet Kiprop"),
			)
			Expect(engineHelper.StartEngine()).To(Succeed())
			engineHelper.WaitForEngineReady(readyTimeout)
		})

		It("should push pending records and pull every remote page", func() {
			patients := engineHelper.Store("patients")
			for _, name := range []string{"Dalmas Ouma", "Esther Wanjiru"} {
				Expect(patients.Save(ctx, record.New(helpers.LocalPatient(name)))).To(Succeed())
			}

			Eventually(func(g Gomega) {
				result, err := engineHelper.SyncAll()
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(result.Get("patients")).NotTo(BeNil())

				counts, err := patients.CountByStatus(ctx)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(counts[status.StatusDone]).To(Equal(5))
				g.Expect(counts[status.StatusPending]).To(BeZero())
				g.Expect(counts[status.StatusInFlight]).To(BeZero())
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())

			Expect(engineHelper.Server.Records("patients")).To(HaveLen(5))

			patientsStatus, err := engineHelper.RecordTypeStatus("patients")
			Expect(err).NotTo(HaveOccurred())
			Expect(patientsStatus.Done).To(Equal(5))
			Expect(patientsStatus.Cycle).NotTo(BeNil())
			Expect(patientsStatus.Cycle.Phase).To(Equal(status.PhaseIdle))
			Expect(patientsStatus.Cycle.LastSyncTime).NotTo(BeNil())
		})

		It("should not pull records again once the cursor has advanced", func() {
			Eventually(func(g Gomega) {
				counts, err := engineHelper.Store("patients").CountByStatus(ctx)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(counts[status.StatusDone]).To(Equal(3))
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())

			_, err := engineHelper.SyncAll()
			Expect(err).NotTo(HaveOccurred())

			Eventually(func(g Gomega) {
				result, err := engineHelper.SyncAll()
				g.Expect(err).NotTo(HaveOccurred())
				patients := result.Get("patients")
				g.Expect(patients).NotTo(BeNil())
				g.Expect(patients.Outcome).To(Equal(pkgsync.OutcomeSynced))
				g.Expect(patients.Pull).NotTo(BeNil())
				g.Expect(patients.Pull.Pulled).To(BeZero())
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())
		})

		It("should reject an unknown record type", func() {
			code, err := engineHelper.SyncRecordType("vaccinations")
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(http.StatusNotFound))
		})
	})

	Context("with records the server rejects", func() {
		BeforeEach(func() {
			Expect(engineHelper.StartEngine()).To(Succeed())
			engineHelper.WaitForEngineReady(readyTimeout)
		})

		It("should list invalid records until they are corrected", func() {
			patients := engineHelper.Store("patients")
			unnamed := record.New(helpers.LocalPatient(""))
			Expect(patients.Save(ctx, unnamed)).To(Succeed())
			Expect(patients.Save(ctx, record.New(helpers.LocalPatient("Faith Njeri")))).To(Succeed())

			Eventually(func(g Gomega) {
				_, err := engineHelper.SyncAll()
				g.Expect(err).NotTo(HaveOccurred())

				page, err := engineHelper.ListInvalid("patients", "", 10)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(page.Records).To(HaveLen(1))
				g.Expect(page.Records[0].ID).To(Equal(unnamed.ID.String()))
				g.Expect(page.Records[0].ValidationErrors).To(ConsistOf(
					record.FieldError{Field: "full_name", Messages: []string{"can't be blank"}},
				))
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())

			Expect(engineHelper.Server.Records("patients")).To(HaveLen(1))

			corrected, err := patients.Get(ctx, unnamed.ID)
			Expect(err).NotTo(HaveOccurred())
			corrected.Payload = helpers.LocalPatient("Grace Akinyi")
			Expect(patients.Save(ctx, corrected)).To(Succeed())

			Eventually(func(g Gomega) {
				_, err := engineHelper.SyncAll()
				g.Expect(err).NotTo(HaveOccurred())

				page, err := engineHelper.ListInvalid("patients", "", 10)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(page.Records).To(BeEmpty())
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())

			Expect(engineHelper.Server.Records("patients")).To(HaveLen(2))
		})
	})

	Context("when the sync server is failing", func() {
		BeforeEach(func() {
			engineHelper.Server.FailNext(http.MethodGet, "patients", http.StatusServiceUnavailable, 100)
			Expect(engineHelper.StartEngine()).To(Succeed())
			engineHelper.WaitForEngineReady(readyTimeout)
		})

		It("should report the failure and recover on the next cycle", func() {
			patients := engineHelper.Store("patients")
			Expect(patients.Save(ctx, record.New(helpers.LocalPatient("Hassan Ali")))).To(Succeed())

			Eventually(func(g Gomega) {
				_, err := engineHelper.SyncAll()
				g.Expect(err).NotTo(HaveOccurred())

				patientsStatus, err := engineHelper.RecordTypeStatus("patients")
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(patientsStatus.Cycle).NotTo(BeNil())
				g.Expect(patientsStatus.Cycle.Phase).To(Equal(status.PhaseFailed))
				g.Expect(patientsStatus.Cycle.LastErrorKind).To(Equal(string(pkgsync.KindServer)))
				g.Expect(patientsStatus.Done).To(Equal(1))
				g.Expect(patientsStatus.InFlight).To(BeZero())
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())

			engineHelper.Server.FailNext(http.MethodGet, "patients", http.StatusServiceUnavailable, 0)

			Eventually(func(g Gomega) {
				code, err := engineHelper.SyncRecordType("patients")
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(code).To(Equal(http.StatusOK))

				patientsStatus, err := engineHelper.RecordTypeStatus("patients")
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(patientsStatus.Cycle.Phase).To(Equal(status.PhaseIdle))
				g.Expect(patientsStatus.Cycle.LastErrorKind).To(BeEmpty())
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())
		})
	})

	Context("with a record type that requires an approved user", func() {
		BeforeEach(func() {
			engineHelper.Server.Seed("facilities",
				[]byte(`{"id":"3b8a2f4e-6f0a-4a57-9d1e-2c5b7f9e1a03","name":"Kisumu Health Centre","updated_at":"2025-01-15T10:00:00Z"}`))
			Expect(engineHelper.StartEngine()).To(Succeed())
			engineHelper.WaitForEngineReady(readyTimeout)
		})

		It("should skip it until the user is approved", func() {
			result, err := engineHelper.SyncAll()
			Expect(err).NotTo(HaveOccurred())
			facilities := result.Get("facilities")
			Expect(facilities).NotTo(BeNil())
			Expect(facilities.Outcome).To(Equal(pkgsync.OutcomeSkipped))
			Expect(facilities.Reason).To(Equal(pkgsync.ReasonApprovalRequired))
			Expect(engineHelper.Server.PullCount("facilities")).To(BeZero())

			approval, err := engineHelper.SetApproval(true)
			Expect(err).NotTo(HaveOccurred())
			Expect(approval.Approved).To(BeTrue())
			Expect(approval.Changed).To(BeTrue())

			// approving triggers a pass without waiting for the next tick
			Eventually(func(g Gomega) {
				facilitiesStatus, err := engineHelper.RecordTypeStatus("facilities")
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(facilitiesStatus.Done).To(Equal(1))
			}, syncTimeout, 250*time.Millisecond).Should(Succeed())

			again, err := engineHelper.SetApproval(true)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Changed).To(BeFalse())
		})
	})
})
