package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
	"github.com/ah-its-andy/mediaconv/internal/convert"
	"github.com/ah-its-andy/mediaconv/internal/engine"
	"github.com/ah-its-andy/mediaconv/internal/history"
	"github.com/ah-its-andy/mediaconv/internal/store"
)

var bitratePattern = regexp.MustCompile(`^[0-9]{1,6}k?$`)

func (s *Server) handleConvert(c *gin.Context) {
	// Cap the request body before anything buffers it; the form overhead
	// on top of the file limit is generous.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxFileSize+(10<<20))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(c, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		fail(c, http.StatusBadRequest, "no file provided")
		return
	}
	if fileHeader.Filename == "" {
		fail(c, http.StatusBadRequest, "no file selected")
		return
	}

	target := c.PostForm("target_format")
	if target == "" {
		fail(c, http.StatusBadRequest, "target format not specified")
		return
	}
	quality, err := convert.ParseQuality(c.PostForm("quality"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	width, err := formInt(c, "width")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	height, err := formInt(c, "height")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	bitrate := c.PostForm("bitrate")
	if bitrate != "" && !bitratePattern.MatchString(bitrate) {
		fail(c, http.StatusBadRequest, "invalid bitrate")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	defer src.Close()

	stored, err := s.store.SaveUpload(src, fileHeader.Filename)
	if err != nil {
		status, msg := mapError(err)
		fail(c, status, msg)
		return
	}
	// The upload is transient: keep it out of the cleanup sweep while the
	// engine reads it, delete it once the attempt is over either way.
	s.store.MarkBusy(stored.Path)
	defer func() {
		s.store.Done(stored.Path)
		s.store.Discard(stored.Path)
	}()

	cat, _ := catalog.CategoryFor(stored.Ext)
	conv := s.converters[cat]

	req := convert.Request{
		SourcePath:   stored.Path,
		SourceExt:    stored.Ext,
		TargetFormat: target,
		Quality:      quality,
		Bitrate:      bitrate,
		Width:        width,
		Height:       height,
	}
	res, convErr := conv.Convert(c.Request.Context(), req)
	s.record(stored.OriginalName, cat, req, res)

	if convErr != nil {
		status, msg := mapError(convErr)
		c.JSON(status, gin.H{
			"success":     false,
			"error":       msg,
			"duration_ms": res.Duration.Milliseconds(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"download_url":   "/api/download/" + res.OutputName,
		"filename":       res.OutputName,
		"format":         catalog.Normalize(target),
		"quality":        string(quality),
		"duration_ms":    res.Duration.Milliseconds(),
		"original_size":  res.InputSize,
		"converted_size": res.OutputSize,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("name")
	path, err := s.store.Resolve(name)
	if err != nil {
		fail(c, http.StatusNotFound, "file not found")
		return
	}
	c.FileAttachment(path, name)
}

func (s *Server) handleDelete(c *gin.Context) {
	name := c.Param("name")
	if err := s.store.Remove(name); err != nil {
		switch {
		case errors.Is(err, store.ErrUnsafeName):
			fail(c, http.StatusBadRequest, "invalid file name")
		case errors.Is(err, fs.ErrNotExist):
			fail(c, http.StatusNotFound, "file not found")
		default:
			s.log.Error("delete failed", zap.String("name", name), zap.Error(err))
			fail(c, http.StatusInternalServerError, "delete failed")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"formats": catalog.Snapshot(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	info, probeErr := s.engine.Probe(c.Request.Context())

	dirs := gin.H{}
	writable := true
	for _, dir := range s.store.Roots() {
		ok := dirWritable(dir)
		writable = writable && ok
		dirs[dir] = ok
	}

	status := "ok"
	code := http.StatusOK
	if probeErr != nil || !writable {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	resp := gin.H{
		"status":      status,
		"directories": dirs,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if probeErr != nil {
		resp["engine_error"] = probeErr.Error()
	} else {
		resp["engine_version"] = info.Version
	}
	c.JSON(code, resp)
}

func (s *Server) handleInfo(c *gin.Context) {
	name := c.Param("name")
	path, err := s.store.ResolveAny(name)
	if err != nil {
		fail(c, http.StatusNotFound, "file not found")
		return
	}

	info, err := s.engine.ProbeFile(c.Request.Context(), path)
	if err != nil {
		status, msg := mapError(err)
		fail(c, status, msg)
		return
	}

	resp := gin.H{
		"success":  true,
		"filename": name,
		"info":     info,
	}
	if cat, ok := catalog.CategoryFor(catalog.ExtOf(name)); ok {
		resp["category"] = string(cat)
	}
	if taken := exifDateTime(path, catalog.ExtOf(name)); taken != "" {
		resp["taken_at"] = taken
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)
	recs, err := s.history.List(limit, offset)
	if err != nil {
		s.log.Error("history list failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "history unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": recs})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.history.Stats()
	if err != nil {
		s.log.Error("stats failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "stats unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   stats.Total,
		"ok":      stats.Success,
		"failed":  stats.Failed,
	})
}

// record writes a history row; failures are logged, never surfaced.
func (s *Server) record(sourceName string, cat catalog.Category, req convert.Request, res convert.Result) {
	rec := &history.Record{
		SourceName:   sourceName,
		OutputName:   res.OutputName,
		Category:     string(cat),
		TargetFormat: catalog.Normalize(req.TargetFormat),
		Quality:      string(req.Quality),
		Status:       "failed",
		Error:        res.Error,
		DurationMs:   res.Duration.Milliseconds(),
		InputSize:    res.InputSize,
		OutputSize:   res.OutputSize,
	}
	if res.Success {
		rec.Status = "success"
		if sum, err := history.FileMD5(res.OutputPath); err == nil {
			rec.OutputMD5 = sum
		}
	}
	if err := s.history.Insert(rec); err != nil {
		s.log.Warn("history insert failed", zap.Error(err))
	}
}

// mapError translates the error taxonomy into an HTTP status: client-caused
// failures are 4xx, engine and environment failures are 5xx.
func mapError(err error) (int, string) {
	var execErr *engine.ExecError
	switch {
	case errors.Is(err, store.ErrInvalidFormat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, convert.ErrUnsupportedFormat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, engine.ErrTimeout):
		return http.StatusGatewayTimeout, err.Error()
	case errors.As(err, &execErr):
		return http.StatusInternalServerError, "conversion failed: " + execErr.Stderr
	default:
		// Not necessarily a conversion problem: storage and other
		// environment failures land here too.
		return http.StatusInternalServerError, err.Error()
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func formInt(c *gin.Context, field string) (int, error) {
	v := c.PostForm(field)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + field)
	}
	return n, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return def
}

func dirWritable(dir string) bool {
	return syscall.Access(dir, 0x2) == nil // W_OK
}

// exifDateTime pulls DateTimeOriginal out of JPEG uploads; other formats
// and files without EXIF return empty.
func exifDateTime(path, ext string) string {
	if ext != "jpg" && ext != "jpeg" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	x, err := exif.Decode(f)
	if err != nil {
		return ""
	}
	dt, err := x.DateTime()
	if err != nil {
		return ""
	}
	return dt.Format(time.RFC3339)
}
