package app

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/storage"
)

// Seed 扫描配置的目录，把其中的文件通过标准上传流程导入运营地址名下的文件夹（幂等）。
// 已登记过相同 contentId 的文件会被跳过。返回本次导入的文件数。
func (c *Context) Seed(ctx context.Context) (int, error) {
	dir := c.Config.Seed.Dir
	if dir == "" {
		return 0, nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Seed] 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0, nil
	}

	operator := c.Config.Operator.Address
	folderID, err := c.seedFolder(ctx, operator)
	if err != nil {
		return 0, err
	}
	files, err := c.Folders.ListFiles(ctx, folderID)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f.ContentID] = true
	}

	imported := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("[Seed] 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if len(data) == 0 {
			log.Infof("[Seed] 空文件跳过: %s", path)
			return nil
		}
		cid, err := storage.ContentID(data)
		if err != nil {
			return nil
		}
		if known[cid] {
			log.Infof("[Seed] 已存在，跳过: %s (cid=%s)", d.Name(), cid)
			return nil
		}

		record, err := c.Uploads.Upload(ctx, data, d.Name(), operator, nil, nil)
		if err != nil {
			log.Warnf("[Seed] 上传失败: %s, err=%v", path, err)
			return nil
		}
		if _, err := c.Folders.AttachFile(ctx, folderID, record.ContentID, record.FileName, operator); err != nil {
			log.Warnf("[Seed] 登记失败: %s, cid=%s, err=%v", path, record.ContentID, err)
			return nil
		}
		known[record.ContentID] = true
		imported++
		log.Infof("[Seed] 导入完成: %s", d.Name())
		return nil
	})
	if walkErr != nil {
		log.Warnf("[Seed] 遍历目录发生错误: %v", walkErr)
	}
	return imported, walkErr
}

// seedFolder 找到运营地址名下同名的文件夹，不存在时创建一个。
func (c *Context) seedFolder(ctx context.Context, operator string) (uint64, error) {
	name := c.Config.Seed.Folder
	folders, err := c.Folders.ListFoldersOwnedBy(ctx, operator)
	if err != nil {
		return 0, err
	}
	for _, f := range folders {
		if f.Name == name {
			return f.ID, nil
		}
	}
	receipt, err := c.Folders.CreateFolder(ctx, operator, name, model.FolderTypeAgent, true)
	if err != nil {
		return 0, err
	}
	log.Infof("[Seed] 已创建导入文件夹 '%s', id: %d", name, receipt.FolderID)
	return receipt.FolderID, nil
}
