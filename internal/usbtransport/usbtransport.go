// Package usbtransport implements session.Transport over a real USB bulk
// endpoint pair using gousb, the same library and open/claim/endpoint
// sequence the reference device drivers in this codebase's sibling tools
// use for direct USB access.
package usbtransport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Config identifies which device and endpoints to open.
type Config struct {
	VID, PID   gousb.ID
	Interface  int
	AltSetting int
}

// DefaultConfig matches the reference tool's default BFL device identity.
func DefaultConfig() Config {
	return Config{VID: 0x1782, PID: 0x4D00, Interface: 0, AltSetting: 0}
}

// Transport owns one open USB device, its claimed interface and the first
// bulk IN/OUT endpoint pair. It implements session.Transport.
type Transport struct {
	cfg    Config
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// Open enumerates and claims the device named by cfg, auto-detaching any
// kernel driver that holds it, and binds the first bulk IN and OUT
// endpoints found on the requested interface/alt-setting.
func Open(cfg Config) (*Transport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(cfg.VID, cfg.PID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open VID:PID %s:%s: %w", cfg.VID, cfg.PID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: device VID:PID %s:%s not found", cfg.VID, cfg.PID)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: set auto-detach: %w", err)
	}

	gcfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: set config: %w", err)
	}
	intf, err := gcfg.Interface(cfg.Interface, cfg.AltSetting)
	if err != nil {
		gcfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: claim interface %d.%d: %w", cfg.Interface, cfg.AltSetting, err)
	}

	epOutAddr, epInAddr, maxPacket, err := firstBulkEndpoints(intf)
	if err != nil {
		intf.Close()
		gcfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	epOut, err := intf.OutEndpoint(epOutAddr)
	if err != nil {
		intf.Close()
		gcfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open OUT endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(epInAddr)
	if err != nil {
		intf.Close()
		gcfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open IN endpoint: %w", err)
	}

	_ = maxPacket // recorded via MaxPacketSize() directly off epIn.Desc below

	return &Transport{cfg: cfg, ctx: ctx, dev: dev, config: gcfg, intf: intf, epOut: epOut, epIn: epIn}, nil
}

// firstBulkEndpoints picks the first bulk-transfer IN and OUT endpoint
// addresses declared on intf's descriptor, and the IN endpoint's max-packet
// size as the session MTU, per the "first bulk IN/OUT, MTU from
// wMaxPacketSize" external-interface contract.
func firstBulkEndpoints(intf *gousb.Interface) (out, in gousb.EndpointAddress, maxPacket int, err error) {
	var foundOut, foundIn bool
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionOut && !foundOut {
			out = ep.Address
			foundOut = true
		}
		if ep.Direction == gousb.EndpointDirectionIn && !foundIn {
			in = ep.Address
			maxPacket = ep.MaxPacketSize
			foundIn = true
		}
	}
	if !foundOut || !foundIn {
		return 0, 0, 0, fmt.Errorf("usbtransport: interface has no bulk IN/OUT endpoint pair")
	}
	return out, in, maxPacket, nil
}

// Write implements session.Transport. The context's deadline is not applied
// to the underlying write (gousb's OutEndpoint.Write has no context-aware
// variant); callers rely on the USB stack's own transfer timeout instead.
func (t *Transport) Write(ctx context.Context, p []byte) error {
	_, err := t.epOut.Write(p)
	if err != nil {
		return fmt.Errorf("usbtransport: write: %w", err)
	}
	return nil
}

// Read implements session.Transport.
func (t *Transport) Read(ctx context.Context, buf []byte) (int, error) {
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		return n, fmt.Errorf("usbtransport: read: %w", err)
	}
	return n, nil
}

// MaxPacketSize implements session.Transport.
func (t *Transport) MaxPacketSize() int {
	return t.epIn.Desc.MaxPacketSize
}

// Close releases the interface, device and context in reverse acquisition
// order.
func (t *Transport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.dev != nil {
		t.dev.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}

// Reopen releases the current handle and polls for the same VID/PID to
// reappear, with a bounded number of attempts spaced apart — the device
// re-enumerates under a new descriptor after FDL1 execution, so the host
// must not simply retry the same handle.
func Reopen(cfg Config, prior *Transport, attempts int, interval time.Duration) (*Transport, error) {
	if prior != nil {
		_ = prior.Close()
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		time.Sleep(interval)
		t, err := Open(cfg)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("usbtransport: device did not re-enumerate after %d attempts: %w", attempts, lastErr)
}
