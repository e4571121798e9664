package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/homedock/internal/broadcast"
	"github.com/edvin/homedock/internal/model"
)

type mockDeployer struct {
	mock.Mock
}

func (m *mockDeployer) Deploy(ctx context.Context, req model.DeployRequest) (model.DeployResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.DeployResult), args.Error(1)
}

type mockAppLister struct {
	mock.Mock
}

func (m *mockAppLister) List(ctx context.Context) ([]model.InstalledApp, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InstalledApp), args.Error(1)
}

type mockHub struct {
	mock.Mock
}

func (m *mockHub) State() model.State {
	return m.Called().Get(0).(model.State)
}

func (m *mockHub) TriggerRefresh() error {
	return m.Called().Error(0)
}

func (m *mockHub) Subscribe() *broadcast.Subscription {
	return m.Called().Get(0).(*broadcast.Subscription)
}
