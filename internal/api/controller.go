package api

import (
	"context"

	"github.com/taoyao-code/crsfctl/internal/params"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// Controller API 使用的会话操作，由 *params.Session 实现
type Controller interface {
	ScanDevices(ctx context.Context) error
	WaitScan(ctx context.Context) error
	Scanning() bool
	Devices() []params.Device
	SelectDevice(ctx context.Context, address uint8) error
	SelectedDevice() (params.Device, bool)
	LoadParameters(ctx context.Context) error
	WaitLoad(ctx context.Context) error
	LoadProgress() params.Progress

	Parameters() []crsf.Parameter
	VisibleParameters() []crsf.Parameter
	Parameter(number uint8) (crsf.Parameter, bool)
	UpdateParameter(number uint8, value int64) error
	UpdateFloat(number uint8, value float64) error
	UpdateText(number uint8, text string) error

	ExecuteCommand(number uint8) error
	ConfirmCommand() error
	CancelCommand() error
	Command() *params.CommandView
	Confirmation() *params.Confirmation

	NavigateToFolder(id uint8) error
	NavigateBack() bool
	CurrentFolder() uint8
	Breadcrumb() []params.FolderEntry

	LinkStatus() params.LinkView
	Notice() *params.Notice
	AcknowledgeNotice() error
}

var _ Controller = (*params.Session)(nil)
