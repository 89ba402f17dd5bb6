package certificates_test

import (
	"crypto/x509"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/orb-community/orb-acceptance/pkg/certificates"
)

func TestCertificates(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Certificates Suite")
}

var _ = Describe("Certificate provider", func() {
	Context("self signed certificate", func() {
		// Given a host name and an address
		// When we generate a certificate
		// Then both are present as subject alternative names
		It("should carry names and addresses", func() {
			cert, key, err := certificates.GenerateSelfSigned([]string{"localhost", "127.0.0.1"}, time.Now().Add(time.Hour))
			Expect(err).ToNot(HaveOccurred())
			Expect(key).ToNot(BeNil())

			Expect(cert.DNSNames).To(ConsistOf("localhost"))
			Expect(cert.IPAddresses).To(HaveLen(1))
			Expect(cert.IPAddresses[0].Equal(net.ParseIP("127.0.0.1"))).To(BeTrue())
			Expect(cert.VerifyHostname("localhost")).To(Succeed())
		})

		It("has correct validity period", func() {
			expiry := time.Now().Add(24 * time.Hour)
			cert, _, err := certificates.GenerateSelfSigned(nil, expiry)
			Expect(err).ToNot(HaveOccurred())

			Expect(cert.NotBefore).To(BeTemporally("<", cert.NotAfter))
			Expect(cert.NotAfter).To(BeTemporally("~", expiry, time.Second))
		})

		It("supports server authentication", func() {
			cert, _, err := certificates.GenerateSelfSigned(nil, time.Now().Add(time.Hour))
			Expect(err).ToNot(HaveOccurred())

			Expect(cert.ExtKeyUsage).To(ContainElement(x509.ExtKeyUsageServerAuth))
		})
	})

	Context("server tls config", func() {
		It("should hold one certificate with its leaf", func() {
			cfg, cert, err := certificates.ServerTLSConfig([]string{"127.0.0.1"}, time.Now().Add(time.Hour))
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Certificates).To(HaveLen(1))
			Expect(cfg.Certificates[0].Leaf).To(Equal(cert))
		})
	})
})
