package cloudvolume

import (
	"context"
	"fmt"

	osc "github.com/outscale/osc-sdk-go/v2"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/device"
	"github.com/outscale/bsud/pkg/log"
	"github.com/outscale/bsud/pkg/ratelimit"
)

// defaultIO1IOPSPerGiB is used when a drive's disk-iops-per-gib is unset.
const defaultIO1IOPSPerGiB = 100

// maxIOPSPerVolume is the floor the Io1 IOPS formula raises small volumes
// to. Note this is a .max(), not a .min(): it *raises* IOPS for small
// volumes rather than capping large ones. Preserved verbatim — see
// DESIGN.md's Open Question decisions.
const maxIOPSPerVolume = 13000

// Config is the process-wide, read-shared cloud credentials/identity
// bundle, built once at startup.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Subregion string
	VMID      string
}

// Client is the rate-limited Outscale volume API client every drive
// worker shares.
type Client struct {
	api     *osc.APIClient
	authCtx context.Context
	cfg     Config
	gate    *ratelimit.Gate
}

// NewClient builds a Client against the Outscale API using cfg's
// credentials and the shared rate limiter gate.
func NewClient(cfg Config, gate *ratelimit.Gate) *Client {
	conf := osc.NewConfiguration()
	api := osc.NewAPIClient(conf)
	authCtx := context.WithValue(context.Background(), osc.ContextAWSv4, osc.AWSv4{
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Region:    cfg.Region,
		Service:   "oapi",
	})
	return &Client{api: api, authCtx: authCtx, cfg: cfg, gate: gate}
}

func (c *Client) acquire(ctx context.Context) error {
	if err := c.gate.Acquire(ctx); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.acquire", err)
	}
	return nil
}

func volumeFromAPI(v osc.Volume) (Volume, error) {
	if v.VolumeId == nil {
		return Volume{}, fmt.Errorf("volume has no id")
	}
	if v.Size == nil {
		return Volume{}, fmt.Errorf("volume %s has no size", *v.VolumeId)
	}
	out := Volume{
		ID:      *v.VolumeId,
		SizeGiB: int(*v.Size),
		Tags:    map[string]string{},
	}
	if v.State != nil {
		out.State = State(*v.State)
	}
	if v.Tags != nil {
		for _, t := range *v.Tags {
			out.Tags[t.Key] = t.Value
		}
	}
	if v.LinkedVolumes != nil {
		for _, lv := range *v.LinkedVolumes {
			if lv.State == nil || lv.VmId == nil {
				continue
			}
			switch *lv.State {
			case "attaching", "attached":
				devicePath := ""
				if lv.DeviceName != nil {
					devicePath = *lv.DeviceName
				}
				out.Attachment = &Attachment{VMID: *lv.VmId, DevicePath: devicePath, State: *lv.State}
			}
			break
		}
	}
	return out, nil
}

// ListByDrive returns every usable volume tagged as belonging to name.
func (c *Client) ListByDrive(ctx context.Context, name string) ([]Volume, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	tag := fmt.Sprintf("%s=%s", TagKey, name)
	req := osc.ReadVolumesRequest{
		Filters: &osc.FiltersVolume{
			Tags:         &[]string{tag},
			VolumeStates: &[]string{"creating", "available", "in-use"},
		},
	}
	resp, _, err := c.api.VolumeApi.ReadVolumes(c.authCtx).ReadVolumesRequest(req).Execute()
	if err != nil {
		return nil, bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.ListByDrive", err)
	}
	var volumes []Volume
	if resp.Volumes != nil {
		for _, v := range *resp.Volumes {
			if v.State == nil || !State(*v.State).Usable() {
				continue
			}
			vol, err := volumeFromAPI(v)
			if err != nil {
				return nil, bsuerrors.New(bsuerrors.InvariantViolation, "cloudvolume.ListByDrive", err)
			}
			volumes = append(volumes, vol)
		}
	}
	return volumes, nil
}

// getState fetches the current state of a single volume.
func (c *Client) getState(ctx context.Context, id string) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	req := osc.ReadVolumesRequest{Filters: &osc.FiltersVolume{VolumeIds: &[]string{id}}}
	resp, _, err := c.api.VolumeApi.ReadVolumes(c.authCtx).ReadVolumesRequest(req).Execute()
	if err != nil {
		return "", bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.getState", err)
	}
	if resp.Volumes == nil || len(*resp.Volumes) == 0 {
		return "", bsuerrors.New(bsuerrors.CloudConflict, "cloudvolume.getState", fmt.Errorf("cannot find volume %s", id))
	}
	v := (*resp.Volumes)[0]
	if v.State == nil {
		return "", bsuerrors.New(bsuerrors.CloudConflict, "cloudvolume.getState", fmt.Errorf("volume %s has no state", id))
	}
	return *v.State, nil
}

// WaitState polls (via the rate limiter, with no extra delay) until the
// volume reports the desired state.
func (c *Client) WaitState(ctx context.Context, id, desired string) error {
	for {
		state, err := c.getState(ctx, id)
		if err != nil {
			return err
		}
		log.WithComponent("cloudvolume").Debug().Str("volume", id).Str("state", state).Str("desired", desired).Msg("waiting for volume state")
		if state == desired {
			return nil
		}
	}
}

// WaitStates polls until every queried volume reports the desired state.
func (c *Client) WaitStates(ctx context.Context, ids []string, desired string) error {
	if len(ids) == 0 {
		return nil
	}
	req := osc.ReadVolumesRequest{Filters: &osc.FiltersVolume{VolumeIds: &ids}}
	for {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		resp, _, err := c.api.VolumeApi.ReadVolumes(c.authCtx).ReadVolumesRequest(req).Execute()
		if err != nil {
			log.WithComponent("cloudvolume").Warn().Err(err).Msg("read volumes failed, retrying")
			continue
		}
		allDesired := true
		if resp.Volumes != nil {
			for _, v := range *resp.Volumes {
				if v.State == nil || *v.State != desired {
					allDesired = false
					break
				}
			}
		}
		if allDesired {
			return nil
		}
	}
}

// io1IOPS computes the IOPS to request for an Io1 volume. This raises
// small-volume IOPS to maxIOPSPerVolume rather than capping large ones —
// preserved verbatim from the original formula rather than silently
// "fixed" to a min(). See DESIGN.md's Open Question decisions.
func io1IOPS(sizeGiB int, iopsPerGiB *int) int {
	perGiB := defaultIO1IOPSPerGiB
	if iopsPerGiB != nil {
		perGiB = *iopsPerGiB
	}
	iops := sizeGiB * perGiB
	if iops < maxIOPSPerVolume {
		iops = maxIOPSPerVolume
	}
	return iops
}

// Create creates a volume of sizeGiB and type t in the daemon's subregion,
// tags it with the owning drive name, and waits for it to become
// available. If tagging fails, the partially created volume is left in
// place and the operation fails.
func (c *Client) Create(ctx context.Context, driveName string, t DiskType, iopsPerGiB *int, sizeGiB int) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	req := osc.CreateVolumeRequest{
		SubregionName: c.cfg.Subregion,
		Size:          &[]int32{int32(sizeGiB)}[0],
		VolumeType:    &[]string{string(t)}[0],
	}
	if t == Io1 {
		iops := io1IOPS(sizeGiB, iopsPerGiB)
		req.Iops = &[]int32{int32(iops)}[0]
	}
	created, _, err := c.api.VolumeApi.CreateVolume(c.authCtx).CreateVolumeRequest(req).Execute()
	if err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.Create", err)
	}
	if created.Volume == nil || created.Volume.VolumeId == nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.Create", fmt.Errorf("volume creation did not return an id"))
	}
	id := *created.Volume.VolumeId

	if err := c.acquire(ctx); err != nil {
		return err
	}
	tagReq := osc.CreateTagsRequest{
		ResourceIds: []string{id},
		Tags:        []osc.ResourceTag{{Key: TagKey, Value: driveName}},
	}
	if _, _, err := c.api.TagApi.CreateTags(c.authCtx).CreateTagsRequest(tagReq).Execute(); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.Create", fmt.Errorf("tagging volume %s: %w", id, err))
	}
	return c.WaitState(ctx, id, "available")
}

// Attach picks the next available local device path and attaches v to
// this VM, waiting for in-use.
func (c *Client) Attach(ctx context.Context, v Volume) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	path, ok := device.NextAvailable(device.OSExister{})
	if !ok {
		return bsuerrors.New(bsuerrors.InvariantViolation, "cloudvolume.Attach", fmt.Errorf("no available device path to attach volume %s", v.ID))
	}
	req := osc.LinkVolumeRequest{DeviceName: path, VmId: c.cfg.VMID, VolumeId: v.ID}
	if _, _, err := c.api.VolumeApi.LinkVolume(c.authCtx).LinkVolumeRequest(req).Execute(); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.Attach", err)
	}
	return c.WaitStates(ctx, []string{v.ID}, "in-use")
}

// Detach detaches v and waits for available.
func (c *Client) Detach(ctx context.Context, v Volume) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	req := osc.UnlinkVolumeRequest{VolumeId: v.ID}
	if _, _, err := c.api.VolumeApi.UnlinkVolume(c.authCtx).UnlinkVolumeRequest(req).Execute(); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.Detach", err)
	}
	return c.WaitState(ctx, v.ID, "available")
}

// Delete deletes v; it does not wait.
func (c *Client) Delete(ctx context.Context, v Volume) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	req := osc.DeleteVolumeRequest{VolumeId: v.ID}
	if _, _, err := c.api.VolumeApi.DeleteVolume(c.authCtx).DeleteVolumeRequest(req).Execute(); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "cloudvolume.Delete", err)
	}
	return nil
}
