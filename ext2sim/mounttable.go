package ext2sim

import (
	"fmt"

	"github.com/dmfabritius/ext2sim/blockio"
	"github.com/dmfabritius/ext2sim/ext2err"
)

// mountEntry records one mounted device, mirroring MountedDevice's
// simulated-namespace fields (diskImage/mountPath/mountPoint) layered on
// top of the Device it wraps.
type mountEntry struct {
	inUse     bool
	diskImage string
	mountPath string
	device    *Device
	// mountPoint is the cached inode, on whichever device hosts it, where
	// this device is attached. nil for the root device.
	mountPoint *CachedInode
}

// FileSystem ties together the inode cache and the table of mounted
// devices, and resolves pathnames across mount points, mirroring
// MountTable + the pathname-walking half of INodeTable::get.
type FileSystem struct {
	Cache  *Cache
	Root   *CachedInode
	mounts [MountTableSize]mountEntry
}

// NewFileSystem creates an engine with an empty inode cache and no mounted
// devices. Call Mount with mountPath "/" first to establish the root.
func NewFileSystem() *FileSystem {
	return &FileSystem{Cache: NewCache()}
}

// Mount attaches stream as a device at mountPath, mirroring
// MountTable::mount. Mounting at "/" establishes the filesystem root; it
// must be done exactly once, before any other mount.
func (fs *FileSystem) Mount(stream blockIOStream, totalBlocks blockio.BlockNum, diskImage, mountPath string) (*CachedInode, error) {
	if mountPath == "" {
		return nil, ext2err.ErrInvalidArgument.WithMessage("no mount point given")
	}
	if mountPath[0] != '/' {
		return nil, ext2err.ErrInvalidArgument.WithMessage("mount point must be an absolute path")
	}
	for i := range fs.mounts {
		if fs.mounts[i].inUse && (fs.mounts[i].diskImage == diskImage || fs.mounts[i].mountPath == mountPath) {
			return nil, ext2err.ErrBusy.WithMessage(
				fmt.Sprintf("%s is already mounted at %s", fs.mounts[i].diskImage, fs.mounts[i].mountPath))
		}
	}

	slot := -1
	for i := range fs.mounts {
		if !fs.mounts[i].inUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, ext2err.ErrTooManyOpenFiles.WithMessage("global mount table is full")
	}

	var mountPointInode *CachedInode
	if mountPath != "/" {
		var err error
		mountPointInode, err = fs.Resolve(mountPath, fs.Root)
		if err != nil {
			return nil, err
		}
		if !mountPointInode.IsDir() {
			fs.Cache.Put(mountPointInode)
			return nil, ext2err.ErrNotADirectory.WithMessage(mountPath + " is not a directory")
		}
		if mountPointInode.refCount > 1 {
			fs.Cache.Put(mountPointInode)
			return nil, ext2err.ErrBusy.WithMessage(mountPath + " is in use")
		}
	}

	device, err := MountDevice(stream, totalBlocks)
	if err != nil {
		if mountPointInode != nil {
			fs.Cache.Put(mountPointInode)
		}
		return nil, err
	}

	fs.mounts[slot] = mountEntry{
		inUse:     true,
		diskImage: diskImage,
		mountPath: mountPath,
		device:    device,
	}

	root := fs.Cache.Get(device, device.RootInode)
	if mountPath == "/" {
		fs.Root = root
		return root, nil
	}

	fs.mounts[slot].mountPoint = mountPointInode
	mountPointInode.DeviceRoot = root
	return root, nil
}

// Unmount detaches the device mounted at mountPath, mirroring
// MountTable::umount / MountedDevice::umount.
func (fs *FileSystem) Unmount(mountPath string) error {
	if mountPath == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no mount point given")
	}
	for i := range fs.mounts {
		m := &fs.mounts[i]
		if !m.inUse || m.mountPath != mountPath {
			continue
		}
		if fs.Cache.DeviceBusy(m.device) {
			return ext2err.ErrBusy.WithMessage("cannot unmount, device is busy")
		}
		if m.mountPoint != nil {
			m.mountPoint.DeviceRoot = nil
			fs.Cache.Put(m.mountPoint)
		}
		root := fs.Cache.Get(m.device, m.device.RootInode)
		root.refCount = 1 // the implicit reference held just by being mounted
		fs.Cache.Put(root)
		*m = mountEntry{}
		return nil
	}
	return ext2err.ErrNotFound.WithMessage("invalid mount point")
}

// Display renders the mount table the way MountTable::display does.
func (fs *FileSystem) Display() string {
	var b []byte
	b = append(b, "Dev  Disk image       Mount point Num blk Free blk Num ino Free ino\n"...)
	for i := range fs.mounts {
		m := &fs.mounts[i]
		if !m.inUse {
			continue
		}
		line := fmt.Sprintf("%-4d %-16s %-11s %-7d %-8d %-7d %-8d\n",
			i, m.diskImage, m.mountPath, m.device.Blocks, m.device.FreeBlks, m.device.Inodes, m.device.FreeIns)
		b = append(b, line...)
	}
	return string(b)
}

// Resolve finds the cached inode for pathname, starting from cwd for
// relative paths, mirroring INodeTable::get(pathname). The caller must
// release the returned inode with fs.Cache.Put.
func (fs *FileSystem) Resolve(pathname string, cwd *CachedInode) (*CachedInode, error) {
	if pathname == "/" {
		fs.Root.refCount++
		return fs.Root, nil
	}

	var file *CachedInode
	if len(pathname) > 0 && pathname[0] == '/' {
		file = fs.Cache.Get(fs.Root.Device, fs.Root.InodeNum)
	} else {
		file = fs.Cache.Get(cwd.Device, cwd.InodeNum)
	}

	_, _, names := SplitPath(pathname)
	for _, name := range names {
		if name == ".." && file.InodeNum == file.Device.RootInode {
			mount := fs.mountEntryFor(file.Device)
			if mount != nil && mount.mountPoint != nil {
				fs.Cache.Put(file)
				file = fs.Cache.Get(mount.mountPoint.Device, mount.mountPoint.InodeNum)
			}
		}

		inodeNum, found, err := Find(file.Device, &file.Inode, name)
		if err != nil {
			fs.Cache.Put(file)
			return nil, err
		}
		if !found {
			fs.Cache.Put(file)
			return nil, ext2err.ErrNotFound.WithMessage(fmt.Sprintf("%q does not exist", name))
		}
		next := fs.Cache.Get(file.Device, inodeNum)
		fs.Cache.Put(file)
		file = next

		if file.DeviceRoot != nil {
			mounted := fs.Cache.Get(file.DeviceRoot.Device, file.DeviceRoot.InodeNum)
			fs.Cache.Put(file)
			file = mounted
		}
	}

	return file, nil
}

func (fs *FileSystem) mountEntryFor(device *Device) *mountEntry {
	for i := range fs.mounts {
		if fs.mounts[i].inUse && fs.mounts[i].device == device {
			return &fs.mounts[i]
		}
	}
	return nil
}

// FullPath computes the absolute path of a cached directory inode by
// walking ".." entries up to the root, mirroring CachedINode::fullpath.
func (fs *FileSystem) FullPath(dir *CachedInode) (string, error) {
	if dir.InodeNum == fs.Root.InodeNum && dir.Device == fs.Root.Device {
		return "/", nil
	}

	dir.refCount++
	cur := dir
	var path string
	for !(cur.InodeNum == fs.Root.InodeNum && cur.Device == fs.Root.Device) {
		if cur.InodeNum == cur.Device.RootInode {
			mount := fs.mountEntryFor(cur.Device)
			fs.Cache.Put(cur)
			cur = fs.Cache.Get(mount.mountPoint.Device, mount.mountPoint.InodeNum)
		}

		parentInodeNum, _, err := Find(cur.Device, &cur.Inode, "..")
		if err != nil {
			fs.Cache.Put(cur)
			return "", err
		}
		parent := fs.Cache.Get(cur.Device, parentInodeNum)

		name, _, err := NameOf(parent.Device, &parent.Inode, cur.InodeNum)
		if err != nil {
			fs.Cache.Put(cur)
			fs.Cache.Put(parent)
			return "", err
		}
		path = "/" + name + path
		fs.Cache.Put(cur)
		cur = parent
	}
	fs.Cache.Put(cur)
	return path, nil
}
