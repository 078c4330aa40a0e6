package core_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/core"
)

type stubCore struct {
	info    core.CoreInfo
	stopped bool
}

func (c *stubCore) Info() core.CoreInfo                                { return c.info }
func (c *stubCore) Initialize(ctx context.Context, cfg core.CoreConfig) error { return nil }
func (c *stubCore) Start(ctx context.Context) error                    { return nil }
func (c *stubCore) Stop(ctx context.Context) error                     { c.stopped = true; return nil }
func (c *stubCore) Devices() []core.MiningDevice                       { return nil }

type stubFactory struct {
	info      core.CoreInfo
	validateErr error
	created   *stubCore
}

func (f *stubFactory) Info() core.CoreInfo { return f.info }
func (f *stubFactory) ValidateConfig(cfg core.CoreConfig) error { return f.validateErr }
func (f *stubFactory) Create(cfg core.CoreConfig) (core.MiningCore, error) {
	f.created = &stubCore{info: f.info}
	return f.created, nil
}

func newTestLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := core.NewRegistry(newTestLogger())
	f := &stubFactory{info: core.CoreInfo{Name: "cpu"}}

	require.NoError(t, r.Register("cpu", f))
	err := r.Register("cpu", f)

	var regErr *core.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, core.RegistryErrDuplicateName, regErr.Kind)
}

func TestRegistry_CreateUnknownNameFails(t *testing.T) {
	r := core.NewRegistry(newTestLogger())
	_, err := r.Create(context.Background(), "ghost", core.CoreConfig{})

	var regErr *core.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, core.RegistryErrUnknownName, regErr.Kind)
}

func TestRegistry_CreateValidatesConfigFirst(t *testing.T) {
	r := core.NewRegistry(newTestLogger())
	f := &stubFactory{info: core.CoreInfo{Name: "cpu"}, validateErr: errors.New("bad field")}
	require.NoError(t, r.Register("cpu", f))

	_, err := r.Create(context.Background(), "cpu", core.CoreConfig{Name: "cpu"})

	var regErr *core.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, core.RegistryErrValidation, regErr.Kind)
	assert.Nil(t, f.created, "Create should not be called when validation fails")
}

func TestRegistry_CreateAndDestroy(t *testing.T) {
	r := core.NewRegistry(newTestLogger())
	f := &stubFactory{info: core.CoreInfo{Name: "cpu"}}
	require.NoError(t, r.Register("cpu", f))

	h, err := r.Create(context.Background(), "cpu", core.CoreConfig{Name: "cpu"})
	require.NoError(t, err)
	assert.Equal(t, "cpu", h.Name())

	require.NoError(t, r.Destroy(context.Background(), h))
	assert.True(t, f.created.stopped)
}

func TestRegistry_List(t *testing.T) {
	r := core.NewRegistry(newTestLogger())
	require.NoError(t, r.Register("cpu", &stubFactory{info: core.CoreInfo{Name: "cpu"}}))
	require.NoError(t, r.Register("asic", &stubFactory{info: core.CoreInfo{Name: "asic"}}))

	infos := r.List()
	assert.Len(t, infos, 2)
}
