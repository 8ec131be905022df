package keenetic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when the router still rejects a request
// after one fresh auth handshake.
var ErrUnauthorized = errors.New("keenetic: unauthorized")

// Registry presents a normalized view of the router's hotspot inventory
// and applies per-host policy changes. It holds no device state of its
// own: every read goes to the router.
type Registry struct {
	session *Session
}

// NewRegistry creates a registry on top of an (ideally authenticated)
// session.
func NewRegistry(session *Session) *Registry {
	return &Registry{session: session}
}

// NormalizeMAC lowers a MAC address to its canonical lowercase
// colon-separated form so it can be used as a stable map key.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// ListDevices fetches the full hotspot inventory. Device names come from
// "show ip hotspot" and policies from "show sc ip hotspot"; the two
// differently-shaped responses are merged into one record per MAC, with
// name defaulting to "unknown" and policy to unrestricted when either
// source lacks the field. A response in a shape we don't recognize yields
// an empty map, not an error: an empty keyboard is better than a dead
// chat flow.
func (r *Registry) ListDevices(ctx context.Context) (map[string]Device, error) {
	names, err := r.fetchHosts(ctx, map[string]any{
		"show": map[string]any{"ip": map[string]any{"hotspot": map[string]any{}}},
	})
	if err != nil {
		return nil, err
	}
	policies, err := r.fetchHosts(ctx, map[string]any{
		"show": map[string]any{"sc": map[string]any{"ip": map[string]any{"hotspot": map[string]any{}}}},
	})
	if err != nil {
		return nil, err
	}

	namesByMAC := make(map[string]string)
	for _, h := range names {
		if h.MAC != "" && h.Name != "" {
			namesByMAC[NormalizeMAC(h.MAC)] = h.Name
		}
	}

	devices := make(map[string]Device)
	for _, h := range policies {
		if h.MAC == "" {
			continue
		}
		mac := NormalizeMAC(h.MAC)
		devices[mac] = Device{
			MAC:    mac,
			Name:   nameOrUnknown(namesByMAC[mac]),
			Policy: NamedPolicy(h.Policy),
		}
	}
	// Hosts present in the name list but absent from the policy list
	// still exist; they just have no profile applied.
	for mac, name := range namesByMAC {
		if _, ok := devices[mac]; !ok {
			devices[mac] = Device{MAC: mac, Name: nameOrUnknown(name), Policy: Unrestricted}
		}
	}
	return devices, nil
}

// Favorites filters inventory down to the given MACs, preserving their
// order. MACs missing from the inventory are omitted, never synthesized.
// Pure function, no I/O.
func Favorites(inventory map[string]Device, macs []string) []Device {
	out := make([]Device, 0, len(macs))
	for _, mac := range macs {
		if dev, ok := inventory[NormalizeMAC(mac)]; ok {
			out = append(out, dev)
		}
	}
	return out
}

// SetPolicy assigns policy to the host with the given MAC, then saves the
// router configuration so the change survives a reboot. Both calls ride
// the authenticated session; any transport or HTTP failure is returned as
// an error for the caller to report.
func (r *Registry) SetPolicy(ctx context.Context, mac string, policy Policy) error {
	if err := r.command(ctx, "rci/ip/hotspot/host", map[string]any{
		"mac":    NormalizeMAC(mac),
		"permit": true,
		"policy": policy,
	}); err != nil {
		return fmt.Errorf("set policy: %w", err)
	}
	if err := r.command(ctx, "rci/system/configuration/save", map[string]any{}); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	return nil
}

// command sends one rci POST and discards the response body, treating any
// non-200 status as failure.
func (r *Registry) command(ctx context.Context, path string, body any) error {
	resp, err := r.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// post sends an rci request over the session, retrying the auth handshake
// at most once when the router answers 401. One retry is deliberate: with
// wrong credentials a blanket retry loop would hammer the router forever.
func (r *Registry) post(ctx context.Context, path string, body any) (*http.Response, error) {
	resp, err := r.session.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	ok, err := r.session.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-authenticate: %w", err)
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	return r.session.Do(ctx, http.MethodPost, path, body)
}

// host is the subset of a hotspot host entry the registry cares about.
type host struct {
	MAC    string `json:"mac"`
	Name   string `json:"name"`
	Policy string `json:"policy"`
}

// fetchHosts POSTs one "show" command to rci/ and digs the host list out
// of the response.
func (r *Registry) fetchHosts(ctx context.Context, command map[string]any) ([]host, error) {
	resp, err := r.post(ctx, "rci/", command)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rci response: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		slog.Debug("rci response is not JSON", "error", err)
		return nil, nil
	}
	return extractHosts(parsed), nil
}

// extractHosts walks any of the known response shapes down to the
// show/.../hotspot/host list. Firmware generations differ: some wrap the
// reply in a one-element array, some return the object bare, and the sc
// variant nests one level deeper. Unrecognized shapes degrade to no
// hosts.
func extractHosts(v any) []host {
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return nil
		}
		v = arr[0]
	}
	node, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"show", "sc", "ip", "hotspot"} {
		child, ok := node[key]
		if !ok {
			if key == "sc" {
				continue // flat variant has no sc level
			}
			return nil
		}
		node, ok = child.(map[string]any)
		if !ok {
			return nil
		}
	}

	list, ok := node["host"].([]any)
	if !ok {
		return nil
	}
	hosts := make([]host, 0, len(list))
	for _, item := range list {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var h host
		if err := json.Unmarshal(raw, &h); err != nil {
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts
}

func nameOrUnknown(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}
