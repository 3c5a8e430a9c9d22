package tempbox

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	"github.com/ShovonSheikh/temp-box/mailtm"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Domains(ctx context.Context) ([]mailtm.Domain, error) {
	args := m.Called()
	return args.Get(0).([]mailtm.Domain), args.Error(1)
}

func (m *MockProvider) CreateAccount(ctx context.Context, address, password string) (mailtm.Account, error) {
	args := m.Called(address, password)
	return args.Get(0).(mailtm.Account), args.Error(1)
}

func (m *MockProvider) Token(ctx context.Context, address, password string) (string, error) {
	args := m.Called(address, password)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) GetAccount(ctx context.Context, token string) (mailtm.Account, error) {
	args := m.Called(token)
	return args.Get(0).(mailtm.Account), args.Error(1)
}

func (m *MockProvider) Messages(ctx context.Context, token string) ([]mailtm.Message, error) {
	args := m.Called(token)
	return args.Get(0).([]mailtm.Message), args.Error(1)
}

func (m *MockProvider) Message(ctx context.Context, token, id string) (mailtm.Message, error) {
	args := m.Called(token, id)
	return args.Get(0).(mailtm.Message), args.Error(1)
}

func (m *MockProvider) DeleteMessage(ctx context.Context, token, id string) error {
	args := m.Called(token, id)
	return args.Error(0)
}

func (m *MockProvider) DeleteAccount(ctx context.Context, token, id string) error {
	args := m.Called(token, id)
	return args.Error(0)
}
