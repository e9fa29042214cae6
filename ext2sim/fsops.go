package ext2sim

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmfabritius/ext2sim/ext2err"
)

// Creat creates an empty regular file at pathname and returns its inode
// number, mirroring INodeTable::creat. Relative paths resolve against cwd.
func (fs *FileSystem) Creat(pathname string, cwd *CachedInode, uid, gid uint16) (uint32, error) {
	if pathname == "" {
		return 0, ext2err.ErrInvalidArgument.WithMessage("no name given")
	}

	parentPath, child, _ := SplitPath(pathname)
	parent, err := fs.resolveParent(parentPath, cwd)
	if err != nil {
		return 0, err
	}
	defer fs.Cache.Put(parent)

	if _, found, err := Find(parent.Device, &parent.Inode, child); err != nil {
		return 0, err
	} else if found {
		return 0, ext2err.ErrExists.WithMessage(fmt.Sprintf("%s already exists in %s", child, parentPath))
	}

	inodeNum := fs.Cache.CreateFileInode(parent.Device, uid, gid)
	if err := Append(parent.Device, &parent.Inode, child, inodeNum, FileTypeReg); err != nil {
		return 0, err
	}
	now := unixTime(time.Now())
	parent.Inode.AccessTime = now
	parent.Inode.ChangeTime = now
	parent.MarkDirty()
	return inodeNum, nil
}

// Mkdir creates a directory at pathname and returns its inode number,
// mirroring INodeTable::mkdir. Relative paths resolve against cwd.
func (fs *FileSystem) Mkdir(pathname string, cwd *CachedInode, uid, gid uint16) (uint32, error) {
	if pathname == "" {
		return 0, ext2err.ErrInvalidArgument.WithMessage("no name given")
	}

	parentPath, child, _ := SplitPath(pathname)
	parent, err := fs.resolveParent(parentPath, cwd)
	if err != nil {
		return 0, err
	}
	defer fs.Cache.Put(parent)

	if _, found, err := Find(parent.Device, &parent.Inode, child); err != nil {
		return 0, err
	} else if found {
		return 0, ext2err.ErrExists.WithMessage(fmt.Sprintf("%s already exists in %s", child, parentPath))
	}

	inodeNum, err := fs.Cache.CreateDirInode(parent.Device, parent.InodeNum, uid, gid)
	if err != nil {
		return 0, err
	}
	if err := Append(parent.Device, &parent.Inode, child, inodeNum, FileTypeDir); err != nil {
		return 0, err
	}
	parent.Inode.LinksCount++
	now := unixTime(time.Now())
	parent.Inode.AccessTime = now
	parent.Inode.ChangeTime = now
	parent.MarkDirty()
	return inodeNum, nil
}

// Rmdir removes an empty directory, mirroring INodeTable::rmdir. Relative
// paths resolve against cwd.
func (fs *FileSystem) Rmdir(pathname string, cwd *CachedInode) error {
	if pathname == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no name given")
	}
	parentPath, child, _ := SplitPath(pathname)
	switch child {
	case ".":
		return ext2err.ErrInvalidArgument.WithMessage("cannot remove reference to current directory")
	case "..":
		return ext2err.ErrInvalidArgument.WithMessage("cannot remove reference to parent directory")
	case "/":
		return ext2err.ErrInvalidArgument.WithMessage("cannot remove reference to root directory")
	}

	childInode, err := fs.Resolve(pathname, cwd)
	if err != nil {
		return err
	}
	if !childInode.IsDir() {
		fs.Cache.Put(childInode)
		return ext2err.ErrNotADirectory.WithMessage(pathname + " is not a directory")
	}
	if childInode.refCount != 1 {
		fs.Cache.Put(childInode)
		return ext2err.ErrBusy.WithMessage(pathname + " is in use")
	}
	empty, err := IsEmpty(childInode.Device, &childInode.Inode)
	if err != nil {
		fs.Cache.Put(childInode)
		return err
	}
	if !empty {
		fs.Cache.Put(childInode)
		return ext2err.ErrDirectoryNotEmpty.WithMessage(pathname + " is not empty")
	}

	for i := 0; i < DirectBlocks; i++ {
		if childInode.Inode.Block[i] == 0 {
			continue
		}
		if err := childInode.Device.Deallocate(BitmapBlock, childInode.Inode.Block[i]); err != nil {
			fs.Cache.Put(childInode)
			return err
		}
	}
	if err := childInode.Device.Deallocate(BitmapInode, childInode.InodeNum); err != nil {
		fs.Cache.Put(childInode)
		return err
	}
	fs.Cache.Put(childInode)

	parent, err := fs.resolveParent(parentPath, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(parent)
	if _, err := Remove(parent.Device, &parent.Inode, child); err != nil {
		return err
	}
	parent.Inode.LinksCount--
	now := unixTime(time.Now())
	parent.Inode.AccessTime = now
	parent.Inode.ModifyTime = now
	parent.Inode.ChangeTime = now
	parent.MarkDirty()
	return nil
}

// Link adds dstName as a new name for the file at srcName, mirroring
// INodeTable::link. isMoving relaxes the not-a-directory check, since Mv
// calls through Link when renaming within one device.
func (fs *FileSystem) Link(srcName, dstName string, cwd *CachedInode, isMoving bool) error {
	if srcName == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no source name given")
	}
	if dstName == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no destination name given")
	}
	if existing, err := fs.Resolve(dstName, cwd); err == nil {
		fs.Cache.Put(existing)
		return ext2err.ErrExists.WithMessage(dstName + " already exists")
	}

	dstParentPath, dstChild, _ := SplitPath(dstName)
	src, err := fs.Resolve(srcName, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(src)

	dst, err := fs.resolveParent(dstParentPath, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(dst)

	if src.IsDir() && !isMoving {
		return ext2err.ErrIsADirectory.WithMessage(srcName + " is a directory")
	}
	if src.Device != dst.Device {
		return ext2err.ErrCrossDeviceLink.WithMessage("source and destination are on different devices")
	}

	if err := Append(dst.Device, &dst.Inode, dstChild, src.InodeNum, dirEntryTypeOf(src)); err != nil {
		return err
	}
	src.Inode.LinksCount++
	src.Inode.ChangeTime = unixTime(time.Now())
	src.MarkDirty()
	return nil
}

func dirEntryTypeOf(inode *CachedInode) uint8 {
	switch {
	case inode.IsDir():
		return FileTypeDir
	case inode.IsSymlink():
		return FileTypeSymlink
	default:
		return FileTypeReg
	}
}

// Unlink removes a directory entry, deleting the underlying file once its
// last link is gone, mirroring INodeTable::unlink.
func (fs *FileSystem) Unlink(pathname string, cwd *CachedInode, isMoving bool) error {
	if pathname == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no name given")
	}
	parentPath, child, _ := SplitPath(pathname)

	file, err := fs.Resolve(pathname, cwd)
	if err != nil {
		return err
	}
	if file.IsDir() && !isMoving {
		fs.Cache.Put(file)
		return ext2err.ErrIsADirectory.WithMessage(pathname + " is a directory")
	}
	if !isMoving && file.refCount > 1 {
		fs.Cache.Put(file)
		return ext2err.ErrBusy.WithMessage(pathname + " is in use")
	}

	file.Inode.LinksCount--
	if file.Inode.LinksCount == 0 {
		if err := file.Truncate(); err != nil {
			fs.Cache.Put(file)
			return err
		}
		if err := file.Device.Deallocate(BitmapInode, file.InodeNum); err != nil {
			fs.Cache.Put(file)
			return err
		}
	}
	file.MarkDirty()
	fs.Cache.Put(file)

	dir, err := fs.resolveParent(parentPath, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(dir)
	_, err = Remove(dir.Device, &dir.Inode, child)
	return err
}

// Symlink creates dstName as a symbolic link pointing to the absolute path
// srcName, mirroring INodeTable::symlink.
func (fs *FileSystem) Symlink(srcName, dstName string, cwd *CachedInode, uid, gid uint16) error {
	if srcName == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no source name given")
	}
	if srcName[0] != '/' {
		return ext2err.ErrInvalidArgument.WithMessage("source name must be an absolute path")
	}
	if dstName == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no destination name given")
	}
	if existing, err := fs.Resolve(dstName, cwd); err == nil {
		fs.Cache.Put(existing)
		return ext2err.ErrExists.WithMessage(dstName + " already exists")
	}

	src, err := fs.Resolve(srcName, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(src)
	if !src.IsReg() && !src.IsDir() {
		return ext2err.ErrInvalidArgument.WithMessage(srcName + " must be a file or directory")
	}

	if _, err := fs.Creat(dstName, cwd, uid, gid); err != nil {
		return err
	}
	link, err := fs.Resolve(dstName, cwd)
	if err != nil {
		return err
	}
	link.Inode.Mode = DefaultLinkMode
	link.setLinkname(srcName)
	link.Inode.ChangeTime = unixTime(time.Now())
	link.MarkDirty()
	return fs.Cache.Put(link)
}

// Stat renders the basic status line for pathname, mirroring
// CachedINode::stat.
func (fs *FileSystem) Stat(pathname string, cwd *CachedInode) (string, error) {
	if pathname == "" {
		return "", ext2err.ErrInvalidArgument.WithMessage("no name given")
	}
	file, err := fs.Resolve(pathname, cwd)
	if err != nil {
		return "", err
	}
	defer fs.Cache.Put(file)

	t := time.Unix(int64(file.Inode.ChangeTime), 0)
	return fmt.Sprintf(
		"ino: %d  size: %d\nuid: %d  gid: %d  links: %d\nmode: %s, 0x%x\ntime: %s",
		file.InodeNum, file.Inode.Size, file.Inode.UID, file.Inode.GID, file.Inode.LinksCount,
		file.ModeString(), file.Inode.Mode, t.Format(time.ANSIC),
	), nil
}

// Chmod changes a file's permission bits, mirroring INodeTable::chmod.
func (fs *FileSystem) Chmod(mode, pathname string, cwd *CachedInode) error {
	modeValue, err := strconv.ParseInt(mode, 0, 32)
	if err != nil || modeValue > 0777 {
		return ext2err.ErrInvalidArgument.WithMessage("invalid mode")
	}
	if pathname == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no name given")
	}
	file, err := fs.Resolve(pathname, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(file)

	file.Inode.Mode &= ModeTypeMask
	file.Inode.Mode |= uint16(modeValue)
	file.Inode.ChangeTime = unixTime(time.Now())
	file.MarkDirty()
	return nil
}

// Utime refreshes a file's access and change times, mirroring
// INodeTable::utime.
func (fs *FileSystem) Utime(pathname string, cwd *CachedInode) error {
	if pathname == "" {
		return ext2err.ErrInvalidArgument.WithMessage("no name given")
	}
	file, err := fs.Resolve(pathname, cwd)
	if err != nil {
		return err
	}
	defer fs.Cache.Put(file)

	now := unixTime(time.Now())
	file.Inode.AccessTime = now
	file.Inode.ChangeTime = now
	file.MarkDirty()
	return nil
}

// Cp copies srcName's contents to dstName (creating it if necessary),
// mirroring INodeTable::cp.
func (fs *FileSystem) Cp(proc *Process, srcName, dstName string) error {
	srcFd, err := proc.Open(srcName, ModeRead)
	if err != nil {
		return ext2err.ErrNotFound.WithMessage("cannot open the source file for read")
	}
	defer proc.Files.Close(srcFd)

	if existing, err := fs.Resolve(dstName, proc.cwd); err == nil {
		fs.Cache.Put(existing)
	} else if _, err := fs.Creat(dstName, proc.cwd, proc.UID, proc.GID); err != nil {
		return ext2err.ErrInvalidArgument.WithMessage("cannot create the destination file")
	}

	dstFd, err := proc.Open(dstName, ModeWrite)
	if err != nil {
		return ext2err.ErrInvalidArgument.WithMessage("cannot open the destination file for write")
	}
	defer proc.Files.Close(dstFd)

	buf := make([]byte, 1024)
	for {
		n, err := proc.Files.Read(srcFd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := proc.Files.Write(dstFd, buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// Mv renames/moves srcName to dstName, mirroring INodeTable::mv.
func (fs *FileSystem) Mv(proc *Process, srcName, dstName string) error {
	if srcName == "" || dstName == "" {
		return ext2err.ErrInvalidArgument.WithMessage("both a source and destination name are required")
	}

	if existing, err := fs.Resolve(dstName, proc.cwd); err == nil {
		fs.Cache.Put(existing)
		if err := fs.Unlink(dstName, proc.cwd, false); err != nil {
			return ext2err.ErrExists.WithMessage("cannot overwrite existing file")
		}
	}

	dstParentPath, _, _ := SplitPath(dstName)
	src, err := fs.Resolve(srcName, proc.cwd)
	if err != nil {
		return err
	}
	dst, err := fs.resolveParent(dstParentPath, proc.cwd)
	if err != nil {
		fs.Cache.Put(src)
		return err
	}

	sameDevice := src.Device == dst.Device
	fs.Cache.Put(src)
	fs.Cache.Put(dst)

	if sameDevice {
		if err := fs.Link(srcName, dstName, proc.cwd, true); err != nil {
			return ext2err.ErrInvalidArgument.WithMessage("cannot move file to same device")
		}
	} else if err := fs.Cp(proc, srcName, dstName); err != nil {
		return ext2err.ErrInvalidArgument.WithMessage("cannot move file to different device")
	}

	if err := fs.Unlink(srcName, proc.cwd, true); err != nil {
		return ext2err.ErrInvalidArgument.WithMessage("file copied to destination, but cannot remove source file")
	}
	return nil
}

// resolveParent resolves a pathname that must refer to a directory,
// returning a not-a-directory error otherwise. It exists because several
// fsops resolve a path's parent directory and immediately require it to be
// one.
func (fs *FileSystem) resolveParent(pathname string, cwd *CachedInode) (*CachedInode, error) {
	dir, err := fs.Resolve(pathname, cwd)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		fs.Cache.Put(dir)
		return nil, ext2err.ErrNotADirectory.WithMessage(pathname + " is not a directory")
	}
	return dir, nil
}
