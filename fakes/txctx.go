package fakes

import (
	"crypto/x509"
	"fmt"
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"
	cid "github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	shim "github.com/hyperledger/fabric-chaincode-go/v2/shim"
)

// MockTransactionContextInterface is a mock of contractapi.TransactionContextInterface.
type MockTransactionContextInterface struct {
	ctrl     *gomock.Controller
	recorder *MockTransactionContextInterfaceMockRecorder
}

// MockTransactionContextInterfaceMockRecorder is the mock recorder for MockTransactionContextInterface.
type MockTransactionContextInterfaceMockRecorder struct {
	mock *MockTransactionContextInterface
}

// NewMockTransactionContextInterface creates a new mock instance.
func NewMockTransactionContextInterface(ctrl *gomock.Controller) *MockTransactionContextInterface {
	mock := &MockTransactionContextInterface{ctrl: ctrl}
	mock.recorder = &MockTransactionContextInterfaceMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockTransactionContextInterface) EXPECT() *MockTransactionContextInterfaceMockRecorder {
	return m.recorder
}

// GetStub mocks base method.
func (m *MockTransactionContextInterface) GetStub() shim.ChaincodeStubInterface {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetStub")
	ret0, _ := ret[0].(shim.ChaincodeStubInterface)
	return ret0
}

// GetStub indicates an expected call of GetStub.
func (mr *MockTransactionContextInterfaceMockRecorder) GetStub() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetStub", reflect.TypeOf((*MockTransactionContextInterface)(nil).GetStub))
}

// GetClientIdentity mocks base method.
func (m *MockTransactionContextInterface) GetClientIdentity() cid.ClientIdentity {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetClientIdentity")
	ret0, _ := ret[0].(cid.ClientIdentity)
	return ret0
}

// GetClientIdentity indicates an expected call of GetClientIdentity.
func (mr *MockTransactionContextInterfaceMockRecorder) GetClientIdentity() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetClientIdentity", reflect.TypeOf((*MockTransactionContextInterface)(nil).GetClientIdentity))
}

// Identity is a fixed cid.ClientIdentity for tests.
type Identity struct {
	ID    string
	MSPID string
	Attrs map[string]string
}

var _ cid.ClientIdentity = (*Identity)(nil)

func (i *Identity) GetID() (string, error) {
	if i.ID == "" {
		return "", fmt.Errorf("no client id")
	}
	return i.ID, nil
}

func (i *Identity) GetMSPID() (string, error) { return i.MSPID, nil }

func (i *Identity) GetAttributeValue(attrName string) (string, bool, error) {
	v, ok := i.Attrs[attrName]
	return v, ok, nil
}

func (i *Identity) AssertAttributeValue(attrName, attrValue string) error {
	if v, ok := i.Attrs[attrName]; !ok || v != attrValue {
		return fmt.Errorf("attribute %s != %s", attrName, attrValue)
	}
	return nil
}

func (i *Identity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }
