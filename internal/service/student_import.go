package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"eduroots/backend/internal/reconcile"
)

const maxImportRows = 5000

var (
	ErrImportNoData      = errors.New("导入文件无数据行（第一行为表头）")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("Excel 表头缺少必要列（姓/名）")
	ErrImportBadFormat   = errors.New("仅支持 .json 或 .xlsx 导入文件")
)

// LoadImportFile 读取外部学生名单，按扩展名选择 JSON 或 Excel 解析
func LoadImportFile(path string) ([]reconcile.ImportedStudent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开导入文件失败: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseStudentJSON(f)
	case ".xlsx":
		return ParseStudentWorkbook(f)
	}
	return nil, ErrImportBadFormat
}

// ParseStudentJSON 解析 JSON 数组形式的学生名单
func ParseStudentJSON(r io.Reader) ([]reconcile.ImportedStudent, error) {
	var rows []reconcile.ImportedStudent
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("无法解析 JSON 文件: %w", err)
	}
	return checkImportRows(rows)
}

// ParseStudentWorkbook 解析 Excel 学生名单（第一个工作表，首行为表头，列序灵活）
func ParseStudentWorkbook(r io.Reader) ([]reconcile.ImportedStudent, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("无法解析Excel文件: %w", err)
	}
	defer f.Close()

	excelRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	colIndex := parseHeaderIndex(excelRows[0])
	if colIndex["lastname"] < 0 || colIndex["firstname"] < 0 {
		return nil, ErrImportBadHeader
	}

	var rows []reconcile.ImportedStudent
	for i := 1; i < len(excelRows); i++ {
		row := excelRows[i]
		get := func(key string) string {
			if idx := colIndex[key]; idx >= 0 && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}

		item := reconcile.ImportedStudent{
			Lastname:  get("lastname"),
			Firstname: get("firstname"),
			Email:     get("email"),
			Phone:     get("phone"),
			Gender:    get("gender"),
			Teacher:   get("teacher"),
		}
		// 跳过全空行
		if item.Lastname == "" && item.Firstname == "" && item.Email == "" {
			continue
		}
		if raw := get("date_of_birth"); raw != "" {
			dob, err := parseBirthDate(raw)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行出生日期无法识别: %s", i+1, raw)
			}
			item.DateOfBirth = &dob
		}
		rows = append(rows, item)
	}
	return checkImportRows(rows)
}

func checkImportRows(rows []reconcile.ImportedStudent) ([]reconcile.ImportedStudent, error) {
	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

// parseHeaderIndex 解析 Excel 表头，返回列名 -> 列索引映射（支持法文与英文表头）
func parseHeaderIndex(header []string) map[string]int {
	idx := map[string]int{
		"lastname":      -1,
		"firstname":     -1,
		"email":         -1,
		"phone":         -1,
		"gender":        -1,
		"date_of_birth": -1,
		"teacher":       -1,
	}
	for i, h := range header {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch lower {
		case "nom", "lastname", "last_name":
			idx["lastname"] = i
		case "prénom", "prenom", "firstname", "first_name":
			idx["firstname"] = i
		case "email", "e-mail", "mail":
			idx["email"] = i
		case "téléphone", "telephone", "phone":
			idx["phone"] = i
		case "genre", "sexe", "gender":
			idx["gender"] = i
		case "date de naissance", "date_of_birth", "birthdate":
			idx["date_of_birth"] = i
		case "professeur", "enseignant", "teacher":
			idx["teacher"] = i
		}
	}
	return idx
}

// parseBirthDate 支持 ISO 日期与 dd/mm/yyyy 两种格式
func parseBirthDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法识别的日期: %s", raw)
}
