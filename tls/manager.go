package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/saiset-co/sai-shop/types"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
)

const renewalWarning = 30 * 24 * time.Hour

var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// CertManager serves certificates either from static files or from ACME via autocert.
type CertManager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	logger       types.Logger
	config       *types.TLSConfig
	autocertMgr  *autocert.Manager
	certificates map[string]*tls.Certificate
	mu           sync.RWMutex
	state        atomic.Value
	now          func() time.Time
}

func NewCertManager(ctx context.Context, logger types.Logger, config *types.TLSConfig) (*CertManager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrTLSIsDisabled
	}

	managerCtx, cancel := context.WithCancel(ctx)

	cm := &CertManager{
		ctx:          managerCtx,
		cancel:       cancel,
		logger:       logger,
		config:       config,
		certificates: make(map[string]*tls.Certificate),
		now:          time.Now,
	}
	cm.state.Store(StateStopped)

	var err error
	if config.AutoCert {
		err = cm.initAutocert()
	} else {
		err = cm.loadKeyPair()
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return cm, nil
}

func (cm *CertManager) initAutocert() error {
	if len(cm.config.Domains) == 0 {
		return types.Errorf(types.ErrTLSConfigInvalid, "auto_cert requires domains")
	}

	cacheDir := cm.config.CacheDir
	if cacheDir == "" {
		cacheDir = "./certs"
	}

	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return types.WrapError(err, "failed to create certificate cache directory")
	}

	cm.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(cacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cm.config.Domains...),
		Email:      cm.config.Email,
	}

	return nil
}

func (cm *CertManager) loadKeyPair() error {
	if cm.config.CertFile == "" || cm.config.KeyFile == "" {
		return types.Errorf(types.ErrTLSConfigInvalid, "cert_file and key_file are required without auto_cert")
	}

	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return types.Errorf(types.ErrCertificateNotFound, "%v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return types.Errorf(types.ErrTLSConfigInvalid, "parse certificate: %v", err)
	}

	now := cm.now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate is outside its validity window")
	}

	cert.Leaf = leaf

	names := leaf.DNSNames
	if len(names) == 0 {
		names = []string{leaf.Subject.CommonName}
	}
	for _, name := range names {
		cm.certificates[name] = &cert
	}

	return nil
}

func (cm *CertManager) Start() error {
	if !cm.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	cm.logger.Info("TLS certificate manager started",
		zap.Bool("auto_cert", cm.config.AutoCert),
		zap.Strings("domains", cm.domains()))
	return nil
}

func (cm *CertManager) Stop() error {
	if !cm.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	cm.cancel()
	cm.logger.Info("TLS certificate manager stopped")
	return nil
}

func (cm *CertManager) IsRunning() bool {
	return cm.state.Load().(State) == StateRunning
}

func (cm *CertManager) GetTLSConfig() *tls.Config {
	config := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		CipherSuites:   cipherSuites,
		NextProtos:     []string{"http/1.1"},
		GetCertificate: cm.getCertificate,
	}

	if cm.autocertMgr != nil {
		config.NextProtos = append(config.NextProtos, "acme-tls/1")
	}

	return config
}

func (cm *CertManager) Listen(addr string) (net.Listener, error) {
	if !cm.IsRunning() {
		return nil, types.ErrServerNotRunning
	}

	ln, err := tls.Listen("tcp", addr, cm.GetTLSConfig())
	if err != nil {
		return nil, types.WrapError(err, "failed to create TLS listener")
	}

	return ln, nil
}

func (cm *CertManager) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if cm.autocertMgr != nil {
		cert, err := cm.autocertMgr.GetCertificate(hello)
		if err != nil {
			cm.logger.Error("Failed to get certificate",
				zap.String("server_name", hello.ServerName),
				zap.Error(err))
			return nil, err
		}

		cm.mu.Lock()
		cm.certificates[hello.ServerName] = cert
		cm.mu.Unlock()

		return cert, nil
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cert, ok := cm.certificates[hello.ServerName]; ok {
		return cert, nil
	}
	for _, cert := range cm.certificates {
		return cert, nil
	}

	return nil, types.ErrCertificateNotFound
}

// GetCertificateStatus reports every known certificate. Autocert domains that
// have not been issued yet show as "pending".
func (cm *CertManager) GetCertificateStatus() map[string]types.CertificateStatus {
	now := cm.now()
	result := make(map[string]types.CertificateStatus)

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, domain := range cm.domains() {
		cert, ok := cm.certificates[domain]
		if !ok || cert == nil {
			result[domain] = types.CertificateStatus{Domain: domain, Status: "pending"}
			continue
		}

		leaf := cert.Leaf
		if leaf == nil {
			parsed, err := x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				result[domain] = types.CertificateStatus{Domain: domain, Status: "invalid", Error: err.Error()}
				continue
			}
			leaf = parsed
		}

		remaining := leaf.NotAfter.Sub(now)
		status := "valid"
		switch {
		case remaining <= 0:
			status = "expired"
		case remaining < renewalWarning:
			status = "expiring"
		}

		result[domain] = types.CertificateStatus{
			Domain:          domain,
			Status:          status,
			Issuer:          leaf.Issuer.CommonName,
			NotAfter:        leaf.NotAfter,
			DaysUntilExpiry: int(remaining.Hours() / 24),
		}
	}

	return result
}

func (cm *CertManager) domains() []string {
	if cm.config.AutoCert {
		return cm.config.Domains
	}

	domains := make([]string, 0, len(cm.certificates))
	for domain := range cm.certificates {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}
