package httpapi

import (
	"bytes"
	"fmt"

	"meatchain/internal/domain"
	"meatchain/internal/service"

	"github.com/xuri/excelize/v2"
)

// 导出工作簿的三张表
var (
	memberExportHeader = []string{"Email", "Full Name", "Role", "Joined At"}
	memberColumnWidths = []float64{32, 24, 12, 20}

	domainExportHeader = []string{"Domain", "Primary", "Added At"}
	domainColumnWidths = []float64{36, 10, 20}

	invitationExportHeader = []string{"Email", "Role", "Status", "Created At", "Expires At"}
	invitationColumnWidths = []float64{32, 12, 12, 20, 20}
)

// GenerateTenantExport 生成租户导出 Excel 工作簿：
// Members / Domains / Pending Invitations 三张表
func GenerateTenantExport(profile *service.TenantProfile, members []*domain.Member, invitations []*service.InvitationView) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// Members
	memberRows := make([][]any, 0, len(members))
	for _, m := range members {
		memberRows = append(memberRows, []any{
			m.Email,
			m.FullName,
			m.Role,
			nullTimeString(m.JoinedAt.Time, m.JoinedAt.Valid),
		})
	}
	if err := fillExportSheet(f, "Members", headerStyle, memberExportHeader, memberColumnWidths, memberRows); err != nil {
		f.Close()
		return nil, err
	}

	// Domains
	domainRows := make([][]any, 0, len(profile.Domains))
	for _, d := range profile.Domains {
		primary := "No"
		if d.IsPrimary {
			primary = "Yes"
		}
		domainRows = append(domainRows, []any{
			d.Domain,
			primary,
			nullTimeString(d.CreatedAt.Time, d.CreatedAt.Valid),
		})
	}
	if err := fillExportSheet(f, "Domains", headerStyle, domainExportHeader, domainColumnWidths, domainRows); err != nil {
		f.Close()
		return nil, err
	}

	// Pending Invitations
	invitationRows := make([][]any, 0, len(invitations))
	for _, inv := range invitations {
		invitationRows = append(invitationRows, []any{
			inv.Email,
			inv.Role,
			inv.Status,
			inv.CreatedAt.Format("2006-01-02 15:04:05"),
			inv.ExpiresAt.Format("2006-01-02 15:04:05"),
		})
	}
	if err := fillExportSheet(f, "Pending Invitations", headerStyle, invitationExportHeader, invitationColumnWidths, invitationRows); err != nil {
		f.Close()
		return nil, err
	}

	// 删除默认的 Sheet1，激活第一张表
	f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex("Members"); err == nil {
		f.SetActiveSheet(index)
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// fillExportSheet 建表、写表头样式和数据行、冻结首行
func fillExportSheet(f *excelize.File, sheetName string, headerStyle int, headers []string, widths []float64, rows [][]any) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheetName, err)
	}

	// 写入表头
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 设置列宽
	for i := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(widths) && widths[i] > 0 {
			if err := f.SetColWidth(sheetName, col, col, widths[i]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	// 写入数据（从第2行开始，第1行是表头）
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	return nil
}
