package contract

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// In-memory stub and transaction context for unit tests. The stub keeps a flat
// key-value map and reproduces Fabric's composite key encoding so composite
// key range scans behave like the real thing. Writes are applied immediately,
// so operations must order their mutations after all checks, as they do on a
// real peer where a failed transaction's write set is simply discarded.

const keySeparator = "\x00"

type chaincodeEvent struct {
	name    string
	payload []byte
}

type mockStub struct {
	state       map[string][]byte
	events      []chaincodeEvent
	txTimestamp time.Time
	txID        string
}

func newMockStub() *mockStub {
	return &mockStub{
		state:       map[string][]byte{},
		txTimestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		txID:        "mock-tx-0",
	}
}

// advance moves the mock transaction clock forward, simulating a later block.
func (m *mockStub) advance(d time.Duration) {
	m.txTimestamp = m.txTimestamp.Add(d)
}

func (m *mockStub) lastEvent() *chaincodeEvent {
	if len(m.events) == 0 {
		return nil
	}
	return &m.events[len(m.events)-1]
}

func (m *mockStub) GetState(key string) ([]byte, error) {
	value, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (m *mockStub) PutState(key string, value []byte) error {
	m.state[key] = value
	return nil
}

func (m *mockStub) DelState(key string) error {
	delete(m.state, key)
	return nil
}

func (m *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := keySeparator + objectType + keySeparator
	for _, attr := range attributes {
		ck += attr + keySeparator
	}
	return ck, nil
}

func (m *mockStub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	trimmed := strings.TrimPrefix(compositeKey, keySeparator)
	parts := strings.Split(strings.TrimSuffix(trimmed, keySeparator), keySeparator)
	if len(parts) < 1 {
		return "", nil, fmt.Errorf("invalid composite key '%s'", compositeKey)
	}
	return parts[0], parts[1:], nil
}

func (m *mockStub) sortedKeysWithPrefix(prefix string) []string {
	keys := []string{}
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *mockStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, _ := m.CreateCompositeKey(objectType, keys)
	return m.newIterator(m.sortedKeysWithPrefix(prefix)), nil
}

func (m *mockStub) GetStateByPartialCompositeKeyWithPagination(objectType string, keys []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	prefix, _ := m.CreateCompositeKey(objectType, keys)
	matching := m.sortedKeysWithPrefix(prefix)

	start := len(matching)
	if bookmark == "" {
		start = 0
	} else {
		for i, k := range matching {
			if k >= bookmark {
				start = i
				break
			}
		}
	}
	end := start + int(pageSize)
	if end > len(matching) {
		end = len(matching)
	}
	page := matching[start:end]

	nextBookmark := ""
	if end < len(matching) {
		nextBookmark = matching[end]
	}
	metadata := &pb.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(page)),
		Bookmark:            nextBookmark,
	}
	return m.newIterator(page), metadata, nil
}

func (m *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(m.txTimestamp), nil
}

func (m *mockStub) SetEvent(name string, payload []byte) error {
	m.events = append(m.events, chaincodeEvent{name: name, payload: payload})
	return nil
}

func (m *mockStub) GetTxID() string     { return m.txID }
func (m *mockStub) GetChannelID() string { return "testchannel" }

// newIterator snapshots the values at creation time so later writes do not
// perturb an in-flight scan.
func (m *mockStub) newIterator(keys []string) *mockIterator {
	results := make([]*queryresult.KV, 0, len(keys))
	for _, k := range keys {
		value := make([]byte, len(m.state[k]))
		copy(value, m.state[k])
		results = append(results, &queryresult.KV{Key: k, Value: value})
	}
	return &mockIterator{results: results}
}

type mockIterator struct {
	results []*queryresult.KV
	pos     int
}

func (it *mockIterator) HasNext() bool {
	return it.pos < len(it.results)
}

func (it *mockIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	kv := it.results[it.pos]
	it.pos++
	return kv, nil
}

func (it *mockIterator) Close() error { return nil }

// Remaining ChaincodeStubInterface methods are unused by the contract.

func (m *mockStub) GetArgs() [][]byte                        { panic("not implemented in mock") }
func (m *mockStub) GetStringArgs() []string                  { panic("not implemented in mock") }
func (m *mockStub) GetFunctionAndParameters() (string, []string) {
	panic("not implemented in mock")
}
func (m *mockStub) GetArgsSlice() ([]byte, error) { panic("not implemented in mock") }
func (m *mockStub) InvokeChaincode(chaincodeName string, args [][]byte, channel string) pb.Response {
	panic("not implemented in mock")
}
func (m *mockStub) SetStateValidationParameter(key string, ep []byte) error {
	panic("not implemented in mock")
}
func (m *mockStub) GetStateValidationParameter(key string) ([]byte, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetStateByRangeWithPagination(startKey, endKey string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetQueryResult(query string) (shim.StateQueryIteratorInterface, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetQueryResultWithPagination(query string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetPrivateData(collection, key string) ([]byte, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetPrivateDataHash(collection, key string) ([]byte, error) {
	panic("not implemented in mock")
}
func (m *mockStub) PutPrivateData(collection string, key string, value []byte) error {
	panic("not implemented in mock")
}
func (m *mockStub) DelPrivateData(collection, key string) error {
	panic("not implemented in mock")
}
func (m *mockStub) PurgePrivateData(collection, key string) error {
	panic("not implemented in mock")
}
func (m *mockStub) SetPrivateDataValidationParameter(collection, key string, ep []byte) error {
	panic("not implemented in mock")
}
func (m *mockStub) GetPrivateDataValidationParameter(collection, key string) ([]byte, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetPrivateDataByRange(collection, startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetPrivateDataByPartialCompositeKey(collection, objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetPrivateDataQueryResult(collection, query string) (shim.StateQueryIteratorInterface, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetCreator() ([]byte, error) { panic("not implemented in mock") }
func (m *mockStub) GetTransient() (map[string][]byte, error) {
	panic("not implemented in mock")
}
func (m *mockStub) GetBinding() ([]byte, error)          { panic("not implemented in mock") }
func (m *mockStub) GetDecorations() map[string][]byte    { panic("not implemented in mock") }
func (m *mockStub) GetSignedProposal() (*pb.SignedProposal, error) {
	panic("not implemented in mock")
}

// mockClientIdentity presents a fixed, already-authenticated caller.
type mockClientIdentity struct {
	id    string
	mspID string
}

func (c *mockClientIdentity) GetID() (string, error)    { return c.id, nil }
func (c *mockClientIdentity) GetMSPID() (string, error) { return c.mspID, nil }
func (c *mockClientIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	return "", false, nil
}
func (c *mockClientIdentity) AssertAttributeValue(attrName, attrValue string) error {
	return fmt.Errorf("attribute '%s' not present on mock identity", attrName)
}
func (c *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

var _ cid.ClientIdentity = (*mockClientIdentity)(nil)

type mockContext struct {
	stub     *mockStub
	identity *mockClientIdentity
}

func (c *mockContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *mockContext) GetClientIdentity() cid.ClientIdentity { return c.identity }

var (
	_ shim.ChaincodeStubInterface           = (*mockStub)(nil)
	_ contractapi.TransactionContextInterface = (*mockContext)(nil)
)

// Shared identities across the test suite.
const (
	adminID      = "hospital-it-admin"
	creatorID    = "dev-alice"
	creator2ID   = "dev-bob"
	regulatorID  = "agency-reviewer"
	supervisorID = "security-supervisor"
	outsiderID   = "unregistered-caller"
)

// asCaller returns a transaction context over the shared stub with the given
// caller identity.
func asCaller(stub *mockStub, caller string) *mockContext {
	return &mockContext{stub: stub, identity: &mockClientIdentity{id: caller, mspID: "Org1MSP"}}
}

// requireErrIs fails the test unless err wraps the given sentinel.
func requireErrIs(t *testing.T, err, target error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, target)
}

// newBootstrappedRegistry returns a contract over a fresh ledger after
// bootstrap: adminID is the sole admin, creatorID and creator2ID hold
// 'creator', regulatorID holds 'regulator' and supervisorID holds
// 'supervisor'.
func newBootstrappedRegistry(t *testing.T) (*AIBOMSmartContract, *mockStub) {
	t.Helper()
	stub := newMockStub()
	s := &AIBOMSmartContract{}
	err := s.BootstrapRegistry(asCaller(stub, adminID),
		`["`+creatorID+`","`+creator2ID+`"]`, `["`+regulatorID+`"]`)
	require.NoError(t, err)
	require.NoError(t, s.GrantRole(asCaller(stub, adminID), supervisorID, "supervisor"))
	return s, stub
}
