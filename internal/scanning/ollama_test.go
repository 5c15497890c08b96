package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ollama *Ollama
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		ollama, newErr = NewOllama(server.URL(), "llava")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = ollama.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	})

	When("the model returns a transcription", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())

					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))

					png, decodeErr := base64.StdEncoding.DecodeString(req.Messages[1].Images[0])
					Expect(decodeErr).NotTo(HaveOccurred())
					Expect(string(png[1:4])).To(Equal("PNG"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "```\nFacture: INV-9\nTotal: 12,00\n```"},
					Done:    true,
				}),
			))
		})

		It("should return the cleaned transcription", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Facture: INV-9\nTotal: 12,00"))
		})
	})

	When("the model returns nothing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "  "},
				Done:    true,
			}))
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the API responds with an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should include the status and body in the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})
})
