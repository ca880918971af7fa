package main

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var uploadExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// uploadDocumentHandler stores a raw scan in GCS and returns its public URL.
// The extraction service references this URL when it ingests the document.
func uploadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		if _, ok := utils.GetUsernameFromContext(ctx); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		businessId, ok := utils.GetBusinessIdFromContext(ctx)
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business-id header is required"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !uploadExtensions[ext] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
			return
		}
		defer file.Close()

		objectKey := path.Join(businessId, "documents", utils.GenerateUniqueFilename()+ext)
		if err := utils.UploadFileToGCS(ctx, objectKey, file); err != nil {
			config.LogError(logger, "Uploads", "uploadDocumentHandler", "UploadFileToGCS", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload file"})
			return
		}

		logger.WithFields(logrus.Fields{
			"business_id": businessId,
			"object_key":  objectKey,
			"size":        fileHeader.Size,
		}).Info("[upload.document]")

		c.JSON(http.StatusOK, gin.H{
			"object_key": objectKey,
			"image_url":  utils.BuildObjectAccessURL(objectKey),
		})
	}
}
