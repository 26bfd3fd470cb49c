package fabricledger

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// ConnectOptions locate the gateway peer and the client identity
type ConnectOptions struct {
	PeerEndpoint string // e.g. "dns:///localhost:7051"
	GatewayPeer  string // TLS server name override
	TLSCertPath  string
	MSPID        string
	CertPath     string
	KeyPath      string
	Channel      string
	Chaincode    string
	Timeout      time.Duration
}

// Connection owns the gRPC connection and gateway
type Connection struct {
	conn    *grpc.ClientConn
	gateway *client.Gateway
}

// Close tears down the gateway and its gRPC connection
func (c *Connection) Close() error {
	if c.gateway != nil {
		_ = c.gateway.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Connect establishes a gateway session and returns an invoker bound to the
// configured channel and chaincode
func Connect(opts ConnectOptions) (*Connection, Invoker, error) {
	conn, err := newGrpcConnection(opts)
	if err != nil {
		return nil, nil, err
	}

	id, err := newIdentity(opts)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	sign, err := newSign(opts)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(opts.Timeout),
		client.WithEndorseTimeout(opts.Timeout),
		client.WithSubmitTimeout(opts.Timeout),
		client.WithCommitStatusTimeout(opts.Timeout),
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	contract := gw.GetNetwork(opts.Channel).GetContract(opts.Chaincode)
	return &Connection{conn: conn, gateway: gw}, &contractInvoker{contract: contract}, nil
}

func newGrpcConnection(opts ConnectOptions) (*grpc.ClientConn, error) {
	certificatePEM, err := os.ReadFile(opts.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate file: %w", err)
	}
	certificate, err := identity.CertificateFromPEM(certificatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TLS certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(certificate)
	transportCredentials := credentials.NewClientTLSFromCert(certPool, opts.GatewayPeer)

	conn, err := grpc.NewClient(opts.PeerEndpoint, grpc.WithTransportCredentials(transportCredentials))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return conn, nil
}

func newIdentity(opts ConnectOptions) (*identity.X509Identity, error) {
	certificatePEM, err := os.ReadFile(opts.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	certificate, err := identity.CertificateFromPEM(certificatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	id, err := identity.NewX509Identity(opts.MSPID, certificate)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return id, nil
}

func newSign(opts ConnectOptions) (identity.Sign, error) {
	privateKeyPEM, err := os.ReadFile(opts.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	privateKey, err := identity.PrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	sign, err := identity.NewPrivateKeySign(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	return sign, nil
}

// contractInvoker submits through the gateway and waits for the commit status
type contractInvoker struct {
	contract *client.Contract
}

func (i *contractInvoker) Submit(name string, args ...string) ([]byte, string, error) {
	result, commit, err := i.contract.SubmitAsync(name, client.WithArguments(args...))
	if err != nil {
		return nil, "", err
	}
	status, err := commit.Status()
	if err != nil {
		return nil, commit.TransactionID(), err
	}
	if !status.Successful {
		return nil, status.TransactionID, fmt.Errorf("transaction %s failed to commit with status code %d", status.TransactionID, int32(status.Code))
	}
	return result, status.TransactionID, nil
}

func (i *contractInvoker) Evaluate(name string, args ...string) ([]byte, error) {
	return i.contract.EvaluateTransaction(name, args...)
}
